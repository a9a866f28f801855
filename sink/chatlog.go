// Package sink contains the consumers of relayed chat traffic: the
// append-only log file and the event sinks fed by the fanout worker.
package sink

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// ChatLog is the best-effort append-only record of relayed chat lines,
// one "[timestamp] [username]: text" line each. Write-only: nothing in
// the relay ever reads it back.
type ChatLog struct {
	mu  sync.Mutex
	f   *os.File
	log *slog.Logger
}

func NewChatLog(path string, log *slog.Logger) (*ChatLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat log: %w", err)
	}
	return &ChatLog{f: f, log: log}, nil
}

// Append writes one chat line. Sessions call it before broadcasting, so
// it must be safe for concurrent use. A write failure is logged and
// swallowed: losing a log line must not break the relay.
func (c *ChatLog) Append(username, text string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("[%s] [%s]: %s\n", at.Format(timestampLayout), username, text)
	if _, err := c.f.WriteString(line); err != nil {
		c.log.Error("Failed to append chat log line", "error", err)
	}
}

func (c *ChatLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
