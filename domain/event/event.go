// Package event defines the domain events fanned out to the sinks.
package event

import (
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	Room() string
}

// MessagePosted is emitted for every chat line after moderation,
// with the content exactly as it was relayed.
type MessagePosted struct {
	ID       uuid.UUID
	RoomName string
	Author   string
	Content  string
	At       time.Time
}

func (m MessagePosted) Room() string { return m.RoomName }

type UserJoined struct {
	RoomName string
	Username string
	At       time.Time
}

func (u UserJoined) Room() string { return u.RoomName }

type UserLeft struct {
	RoomName string
	Username string
	At       time.Time
}

func (u UserLeft) Room() string { return u.RoomName }

// PrivateMessageSent carries no content on purpose. Private text is
// relayed point to point and never logged or archived.
type PrivateMessageSent struct {
	From string
	To   string
	At   time.Time
}

func (PrivateMessageSent) Room() string { return "" }

type FileStored struct {
	FileName string
	Size     int64
	MimeType string
	By       string
	At       time.Time
}

func (FileStored) Room() string { return "" }
