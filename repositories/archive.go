//go:generate go run go.uber.org/mock/mockgen -source=archive.go -destination=../mocks/mock_archive_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IArchiveRepository interface {
	StoreMessage(msg ArchivedMessage) error
	Recent(room string, limit int) ([]ArchivedMessage, error)
}

// ArchiveRepository persists relayed chat lines in BadgerDB. It is a
// supplement to the append-only chat log file: the flat file stays
// write-only while the archive is what /history and the inspector read.
type ArchiveRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewArchiveRepository(db *badger.DB, log *slog.Logger) *ArchiveRepository {
	return &ArchiveRepository{db: db, log: log}
}

type ArchivedMessage struct {
	ID      uuid.UUID `json:"id"`
	Room    string    `json:"room"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	Lang    string    `json:"lang,omitempty"`
	At      time.Time `json:"at"`
}

// archiveKey formats keys as "msg:{room}:{timestamp_padded}:{uuid}" so that:
//  1. a prefix scan isolates one room,
//  2. 19-digit zero padding keeps lexicographic order chronological,
//  3. the UUID disambiguates two messages landing on the same nanosecond.
func archiveKey(msg ArchivedMessage) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d:%s", msg.Room, msg.At.UnixNano(), msg.ID)
}

func (a ArchiveRepository) StoreMessage(msg ArchivedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(archiveKey(msg), data)
	})
}

// Recent returns up to limit messages of a room, oldest first. It walks the
// key space backwards from the newest possible timestamp and reverses the
// collected batch, so the newest limit messages come back in reading order.
func (a ArchiveRepository) Recent(room string, limit int) ([]ArchivedMessage, error) {
	var raw [][]byte
	prefix := []byte(fmt.Sprintf("msg:%s:", room))

	err := a.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key of this room, then walk back.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(raw) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				raw = append(raw, append([]byte{}, val...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error during recent scan: %w", err)
	}

	messages := make([]ArchivedMessage, 0, len(raw))
	for _, b := range raw {
		var msg ArchivedMessage
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal failed: %w", err)
		}
		messages = append(messages, msg)
	}
	return lo.Reverse(messages), nil
}
