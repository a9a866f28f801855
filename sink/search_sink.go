package sink

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"chat-relay/domain/event"
	"chat-relay/repositories"
)

// SearchSink feeds relayed messages into the Bluge full-text index.
type SearchSink struct {
	index repositories.ISearchIndex
	log   *slog.Logger
}

func NewSearchSink(index repositories.ISearchIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessagePosted)
	if !ok {
		return nil
	}
	if evt.ID == uuid.Nil {
		s.log.Warn("Skipping message without ID", "author", evt.Author)
		return nil
	}
	return s.index.IndexMessage(repositories.ArchivedMessage{
		ID:      evt.ID,
		Room:    evt.RoomName,
		Author:  evt.Author,
		Content: evt.Content,
		At:      evt.At,
	})
}
