// Package domain contains core concepts of the chat relay.
// No networking, storage, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRoom is joined implicitly right after authentication.
const DefaultRoom = "global"

// Message represents an immutable chat line after moderation.
type Message struct {
	ID      uuid.UUID
	Room    string
	Author  string
	Content string
	At      time.Time
}

// Render formats the line exactly as peers in the room receive it.
func (m Message) Render() string {
	return "[" + m.Author + "]: " + m.Content
}
