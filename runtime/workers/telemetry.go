package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/observability"
)

// TelemetryWorker periodically logs one structured line of relay counters
// and process self-stats.
type TelemetryWorker struct {
	log            *slog.Logger
	monitor        *observability.Monitor
	metricInterval time.Duration
	sessionCount   func() int
}

func NewTelemetryWorker(
	log *slog.Logger,
	monitor *observability.Monitor,
	metricInterval time.Duration,
	sessionCount func() int,
) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		monitor:        monitor,
		metricInterval: metricInterval,
		sessionCount:   sessionCount,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := w.monitor.Snapshot()
			w.log.Info("Relay telemetry",
				"active_sessions", w.sessionCount(),
				"messages_relayed", stats.MessagesRelayed,
				"private_messages", stats.PrivateMessages,
				"files_stored", stats.FilesStored,
				"files_served", stats.FilesServed,
				"transfer_errors", stats.TransferErrors,
				"bytes_transferred", stats.BytesTransferred,
				"rss_bytes", stats.RSSBytes,
				"cpu_percent", stats.CPUPercent,
			)
		}
	}
}
