package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// EventFanout delivers domain events to the registered sinks.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering across sinks, durability, or retries. It exists for side
// effects (archive, search index, telemetry), never for relay semantics:
// a slow sink must not slow down a chat broadcast.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	sinkTimeout time.Duration
	sinks       []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.fanout(ctx, evt)
		}
	}
}

// fanout hands one event to every sink, each under its own timeout so a
// stuck sink cannot starve the others forever.
func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	for _, s := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := s.Consume(sinkCtx, evt); err != nil {
			w.log.Error("Sink failed to consume event", "error", err)
		}
		cancel()
	}
}
