package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestArchiveRepository_StoreAndRecent(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repo := NewArchiveRepository(newTestDB(t), log)
	base := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

	// Given ten messages in one room and one in another
	for i := 0; i < 10; i++ {
		req.NoError(repo.StoreMessage(ArchivedMessage{
			ID:      uuid.New(),
			Room:    "global",
			Author:  "alice",
			Content: fmt.Sprintf("message %d", i),
			At:      base.Add(time.Duration(i) * time.Second),
		}))
	}
	req.NoError(repo.StoreMessage(ArchivedMessage{
		ID:      uuid.New(),
		Room:    "gaming",
		Author:  "bob",
		Content: "other room",
		At:      base,
	}))

	// When asking for the three most recent messages of the room
	messages, err := repo.Recent("global", 3)
	req.NoError(err)

	// Then the newest three come back oldest first
	req.Len(messages, 3)
	req.Equal("message 7", messages[0].Content)
	req.Equal("message 8", messages[1].Content)
	req.Equal("message 9", messages[2].Content)
}

func TestArchiveRepository_Recent_EmptyRoom(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repo := NewArchiveRepository(newTestDB(t), log)

	messages, err := repo.Recent("nowhere", 10)
	req.NoError(err)
	req.Empty(messages)
}

func TestArchiveRepository_RoundTrip(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	repo := NewArchiveRepository(newTestDB(t), log)

	msg := ArchivedMessage{
		ID:      uuid.New(),
		Room:    "global",
		Author:  "alice",
		Content: "bonjour tout le monde",
		Lang:    "fr",
		At:      time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC),
	}
	req.NoError(repo.StoreMessage(msg))

	messages, err := repo.Recent("global", 1)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(msg, messages[0])
}
