package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"

	"chat-relay/domain/event"
	"chat-relay/repositories"
)

// ArchiveSink persists relayed messages in the Badger archive, tagging
// each one with its detected language.
type ArchiveSink struct {
	repository repositories.IArchiveRepository
	log        *slog.Logger
}

func NewArchiveSink(repository repositories.IArchiveRepository, log *slog.Logger) ArchiveSink {
	return ArchiveSink{repository: repository, log: log}
}

func (a ArchiveSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		return a.repository.StoreMessage(toArchivedMessage(evt))
	default:
		a.log.Debug(fmt.Sprintf("Not an archived event : %T", evt))
		return nil
	}
}

func toArchivedMessage(evt event.MessagePosted) repositories.ArchivedMessage {
	info := whatlanggo.Detect(evt.Content)
	return repositories.ArchivedMessage{
		ID:      evt.ID,
		Room:    evt.RoomName,
		Author:  evt.Author,
		Content: evt.Content,
		Lang:    info.Lang.Iso6391(),
		At:      evt.At,
	}
}
