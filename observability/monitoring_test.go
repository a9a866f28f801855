package observability

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	req := require.New(t)
	monitor, err := NewMonitor(logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	monitor.IncrSessionsOpened()
	monitor.IncrSessionsOpened()
	monitor.IncrSessionsClosed()
	monitor.IncrMessagesRelayed()
	monitor.IncrPrivateMessages()
	monitor.IncrFilesStored()
	monitor.IncrFilesServed()
	monitor.IncrTransferErrors()
	monitor.AddBytesTransferred(1024)

	stats := monitor.Snapshot()
	req.Equal(uint64(2), stats.SessionsOpened)
	req.Equal(uint64(1), stats.SessionsClosed)
	req.Equal(uint64(1), stats.MessagesRelayed)
	req.Equal(uint64(1), stats.PrivateMessages)
	req.Equal(uint64(1), stats.FilesStored)
	req.Equal(uint64(1), stats.FilesServed)
	req.Equal(uint64(1), stats.TransferErrors)
	req.Equal(uint64(1024), stats.BytesTransferred)

	// Self-stats are best effort but the current process must exist
	req.Greater(stats.RSSBytes, uint64(0))
}
