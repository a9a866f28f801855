//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_index.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
)

type ISearchIndex interface {
	IndexMessage(msg ArchivedMessage) error
	Search(ctx context.Context, room, terms string, limit int) ([]SearchHit, error)
}

// SearchIndex maintains a Bluge full-text index over archived chat lines,
// queried by the /search command.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

type SearchHit struct {
	Author  string
	Content string
}

func (s *SearchIndex) IndexMessage(msg ArchivedMessage) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("room", msg.Room)).
		AddField(bluge.NewKeywordField("author", msg.Author).StoreValue()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewDateTimeField("at", msg.At))

	return s.writer.Update(doc.ID(), doc)
}

// Search runs a full-text match over one room's messages and returns the
// best hits, most relevant first.
func (s *SearchIndex) Search(ctx context.Context, room, terms string, limit int) ([]SearchHit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(room).SetField("room")).
		AddMust(bluge.NewMatchQuery(terms).SetField("content"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var hits []SearchHit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("search iteration failed: %w", err)
		}
		if match == nil {
			break
		}

		var hit SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "author":
				hit.Author = string(value)
			case "content":
				hit.Content = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
