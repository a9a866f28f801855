// Package server owns the TCP listener and the per-connection sessions:
// the authentication handshake, the chat read loop, room membership, and
// the in-band file transfer sub-protocol.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"chat-relay/credstore"
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/sink"
)

// Server accepts connections and spawns one session goroutine each. It
// implements contract.Worker so the supervisor can restart the accept
// loop; a restart rebinds the listener.
type Server struct {
	cfg       internal.Config
	log       *slog.Logger
	creds     credstore.IStore
	registry  *Registry
	relay     *Relay
	chatLog   *sink.ChatLog
	archive   repositories.IArchiveRepository
	search    repositories.ISearchIndex
	moderator moderation.Moderator
	monitor   *observability.Monitor
	events    chan<- event.DomainEvent

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(
	cfg internal.Config,
	log *slog.Logger,
	creds credstore.IStore,
	registry *Registry,
	relay *Relay,
	chatLog *sink.ChatLog,
	archive repositories.IArchiveRepository,
	search repositories.ISearchIndex,
	moderator moderation.Moderator,
	monitor *observability.Monitor,
	events chan<- event.DomainEvent,
) *Server {
	return &Server{
		cfg:       cfg,
		log:       log,
		creds:     creds,
		registry:  registry,
		relay:     relay,
		chatLog:   chatLog,
		archive:   archive,
		search:    search,
		moderator: moderator,
		monitor:   monitor,
		events:    events,
	}
}

// Listen binds the configured address. It is split from Run so callers
// (and tests) can learn the bound address before accepting starts.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	address := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts connections until the context is canceled. Every accepted
// socket gets its own goroutine; a slow or hostile peer only ever stalls
// its own session.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		_ = listener.Close()
		s.listener = nil
		s.mu.Unlock()
	}()

	// Unblock Accept on shutdown.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.log.Info("Chat relay listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.monitor.IncrSessionsOpened()
		session := newSession(s, conn)
		go session.run(ctx)
	}
}

// publish hands an event to the fanout worker without ever blocking a
// session: when the buffer is full the event is dropped and logged.
func (s *Server) publish(e event.DomainEvent) {
	select {
	case s.events <- e:
	default:
		s.log.Warn(fmt.Sprintf("Event channel full, dropping %T", e))
	}
}
