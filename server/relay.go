package server

import (
	"log/slog"
)

// Relay fans a message out to every member of a room except the sender.
type Relay struct {
	registry *Registry
	log      *slog.Logger
}

func NewRelay(registry *Registry, log *slog.Logger) *Relay {
	return &Relay{registry: registry, log: log}
}

// Broadcast delivers the message exactly once to each member of the room
// other than the sender. The member list is snapshotted under the registry
// lock and delivery happens outside it; SendMessage is independently safe
// for concurrent use. An empty or unknown room is a no-op.
//
// A delivery failure affects only that recipient: its own read loop will
// observe the broken connection and tear the session down.
func (r *Relay) Broadcast(message, sender, room string) {
	for _, s := range r.registry.Snapshot(room, sender) {
		if err := s.SendMessage(message); err != nil {
			r.log.Warn("Failed to deliver broadcast", "to", s.Username(), "error", err)
		}
	}
}
