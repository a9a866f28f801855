package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	goerrors "errors"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
)

const searchResultLimit = 10

var helpLines = []string{
	"/pm <username> <message> - Send a private message.",
	"/join <room> - Join a chat room.",
	"/history [count] - Replay recent messages of this room.",
	"/search <terms> - Full-text search in this room.",
	"/stats - Show relay statistics.",
	"/leave - Leave the chat.",
}

// Session owns one connection end to end: the authentication handshake,
// the read loop, the current room pointer, and the outbound writer.
// Everything except SendMessage runs on the session's own goroutine;
// SendMessage is the single entry point other sessions may call.
type Session struct {
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	username   string
	room       string
	registered bool
}

func newSession(srv *Server, conn net.Conn) *Session {
	return &Session{
		srv:    srv,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}
}

func (s *Session) Username() string { return s.username }

// SendMessage writes one line to the socket. It is the sole mutation
// point reachable from other sessions' goroutines and may be called
// concurrently; the write mutex also keeps chat lines from interleaving
// with a raw download body.
func (s *Session) SendMessage(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
	if _, err := s.writer.WriteString(text + "\n"); err != nil {
		return err
	}
	return s.writer.Flush()
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		s.teardown()
		_ = s.conn.Close()
		s.srv.monitor.IncrSessionsClosed()
	}()

	if err := s.authenticate(); err != nil {
		s.srv.log.Info("Authentication failed", "remote", s.conn.RemoteAddr().String(), "error", err)
		return
	}

	_ = s.SendMessage(fmt.Sprintf("Welcome to the chat, %s! Type /help for commands.", s.username))
	s.joinRoom(domain.DefaultRoom)

	s.readLoop(ctx)
}

// authenticate performs the two-line handshake. On any failure the
// connection is torn down without further interaction.
func (s *Session) authenticate() error {
	if err := s.SendMessage("Enter your username:"); err != nil {
		return err
	}
	username, err := s.readLine(s.srv.cfg.IdleTimeout)
	if err != nil {
		return err
	}
	if err := s.SendMessage("Enter your password:"); err != nil {
		return err
	}
	password, err := s.readLine(s.srv.cfg.IdleTimeout)
	if err != nil {
		return err
	}

	registered, err := s.srv.creds.VerifyOrRegister(username, password)
	switch {
	case goerrors.Is(err, errors.ErrAuthFailed):
		_ = s.SendMessage("Incorrect password. Disconnecting.")
		return err
	case goerrors.Is(err, errors.ErrInvalidCredential):
		_ = s.SendMessage("Username and password must not contain ':' or line breaks. Disconnecting.")
		return err
	case err != nil:
		return err
	}

	if registered {
		if err := s.SendMessage("Username not found. Registering new user."); err != nil {
			return err
		}
	}

	s.username = username
	if err := s.srv.registry.AddSession(s); err != nil {
		_ = s.SendMessage(fmt.Sprintf("User %s is already connected. Disconnecting.", username))
		s.username = ""
		return err
	}
	s.registered = true
	return nil
}

// readLoop classifies each incoming line as a transfer trigger, a
// command, or a chat line. End of stream, a read error, or a timeout all
// end the session; there is no reconnect.
func (s *Session) readLoop(ctx context.Context) {
	for {
		line, err := s.readLine(s.srv.cfg.IdleTimeout)
		if err != nil {
			if !goerrors.Is(err, io.EOF) {
				s.srv.log.Debug("Session read ended", "user", s.username, "error", err)
			}
			return
		}

		switch {
		case line == domain.UploadTrigger:
			if err := s.receiveUpload(); err != nil {
				s.srv.log.Warn("Upload failed", "user", s.username, "error", err)
				s.srv.monitor.IncrTransferErrors()
				// The stream position is unknown after a broken transfer.
				return
			}
		case strings.HasPrefix(line, domain.DownloadPrefix):
			name := strings.TrimSpace(strings.TrimPrefix(line, domain.DownloadPrefix))
			if err := s.serveDownload(name); err != nil {
				s.srv.log.Warn("Download failed", "user", s.username, "file", name, "error", err)
				s.srv.monitor.IncrTransferErrors()
				return
			}
		case strings.HasPrefix(line, "/"):
			if quit := s.processCommand(ctx, line); quit {
				return
			}
		default:
			s.relayChat(line)
		}
	}
}

// relayChat moderates the line, appends it to the chat log, then
// broadcasts it to the current room tagged with the sender's identity.
func (s *Session) relayChat(text string) {
	censored, matched := s.srv.moderator.Censor(text)
	if len(matched) > 0 {
		s.srv.log.Debug("Censored chat line", "user", s.username, "words", matched)
	}

	msg := domain.Message{
		ID:      uuid.New(),
		Room:    s.room,
		Author:  s.username,
		Content: censored,
		At:      time.Now().UTC(),
	}
	s.srv.chatLog.Append(msg.Author, msg.Content, msg.At)
	s.srv.relay.Broadcast(msg.Render(), msg.Author, msg.Room)
	s.srv.monitor.IncrMessagesRelayed()

	s.srv.publish(event.MessagePosted{
		ID:       msg.ID,
		RoomName: msg.Room,
		Author:   msg.Author,
		Content:  msg.Content,
		At:       msg.At,
	})
}

// processCommand dispatches one slash command. It reports whether the
// session should terminate (client-initiated /leave).
func (s *Session) processCommand(ctx context.Context, line string) bool {
	cmd, err := domain.ParseCommand(line)
	if err != nil {
		var usage domain.UsageError
		if goerrors.As(err, &usage) {
			_ = s.SendMessage(usage.Usage)
		}
		return false
	}

	switch c := cmd.(type) {
	case domain.PrivateMessageCommand:
		s.sendPrivateMessage(c.Target, c.Text)

	case domain.JoinCommand:
		s.leaveRoom()
		s.joinRoom(c.Room)

	case domain.HelpCommand:
		for _, l := range helpLines {
			if err := s.SendMessage(l); err != nil {
				return true
			}
		}

	case domain.LeaveCommand:
		_ = s.SendMessage("Goodbye!")
		return true

	case domain.HistoryCommand:
		s.replayHistory(c.Limit)

	case domain.SearchCommand:
		s.searchRoom(ctx, c.Terms)

	case domain.StatsCommand:
		s.sendStats()

	case domain.UnknownCommand:
		_ = s.SendMessage("Unknown command. Type /help for a list of commands.")
	}
	return false
}

// sendPrivateMessage routes text to a session by identity, bypassing
// room membership. The text is never logged or archived.
func (s *Session) sendPrivateMessage(target, text string) {
	peer, ok := s.srv.registry.FindSession(target)
	if !ok {
		_ = s.SendMessage(fmt.Sprintf("User %s not found.", target))
		return
	}
	if err := peer.SendMessage(fmt.Sprintf("[Private from %s]: %s", s.username, text)); err != nil {
		s.srv.log.Warn("Failed to deliver private message", "to", target, "error", err)
		return
	}
	s.srv.monitor.IncrPrivateMessages()
	s.srv.publish(event.PrivateMessageSent{From: s.username, To: target, At: time.Now().UTC()})
}

// joinRoom adds the session to a room, creating it on first use. The
// join notice goes out after the addition completed; the joiner is
// excluded by the broadcast itself.
func (s *Session) joinRoom(room string) {
	s.room = room
	s.srv.registry.Join(s.username, room)
	s.srv.relay.Broadcast(fmt.Sprintf("%s has joined the room.", s.username), s.username, room)
	s.srv.publish(event.UserJoined{RoomName: room, Username: s.username, At: time.Now().UTC()})
}

// leaveRoom removes the session from its current room. Idempotent: the
// notice only goes out when a membership was actually removed.
func (s *Session) leaveRoom() {
	if s.room == "" {
		return
	}
	room := s.room
	s.room = ""
	if !s.srv.registry.Leave(s.username, room) {
		return
	}
	s.srv.relay.Broadcast(fmt.Sprintf("%s has left the room.", s.username), s.username, room)
	s.srv.publish(event.UserLeft{RoomName: room, Username: s.username, At: time.Now().UTC()})
}

func (s *Session) replayHistory(limit int) {
	if limit > s.srv.cfg.HistoryLimit {
		limit = s.srv.cfg.HistoryLimit
	}
	messages, err := s.srv.archive.Recent(s.room, limit)
	if err != nil {
		s.srv.log.Error("History lookup failed", "room", s.room, "error", err)
		_ = s.SendMessage("History is unavailable right now.")
		return
	}
	if len(messages) == 0 {
		_ = s.SendMessage("No archived messages for this room.")
		return
	}

	lines := lo.Map(messages, func(m repositories.ArchivedMessage, _ int) string {
		return fmt.Sprintf("[%s] [%s]: %s", m.At.Format("15:04:05"), m.Author, m.Content)
	})
	for _, l := range lines {
		if s.SendMessage(l) != nil {
			return
		}
	}
}

func (s *Session) searchRoom(ctx context.Context, terms string) {
	hits, err := s.srv.search.Search(ctx, s.room, terms, searchResultLimit)
	if err != nil {
		s.srv.log.Error("Search failed", "room", s.room, "error", err)
		_ = s.SendMessage("Search is unavailable right now.")
		return
	}
	if len(hits) == 0 {
		_ = s.SendMessage("No matches in this room.")
		return
	}
	for _, hit := range hits {
		if s.SendMessage(fmt.Sprintf("[%s]: %s", hit.Author, hit.Content)) != nil {
			return
		}
	}
}

func (s *Session) sendStats() {
	stats := s.srv.monitor.Snapshot()
	_ = s.SendMessage(fmt.Sprintf(
		"Sessions: %d | Rooms: %d | Relayed: %d | Private: %d | Files stored/served: %d/%d | RSS: %d MiB | CPU: %.1f%%",
		s.srv.registry.SessionCount(),
		s.srv.registry.RoomCount(),
		stats.MessagesRelayed,
		stats.PrivateMessages,
		stats.FilesStored,
		stats.FilesServed,
		stats.RSSBytes>>20,
		stats.CPUPercent,
	))
}

// teardown runs exactly once when the read loop exits for any reason.
func (s *Session) teardown() {
	if !s.registered {
		return
	}
	s.leaveRoom()
	s.srv.registry.RemoveSession(s.username)
	s.srv.log.Info("Session closed", "user", s.username)
}

// readLine reads one newline-terminated line with a deadline. A timeout
// is treated like end of stream: the caller tears the session down.
func (s *Session) readLine(timeout time.Duration) (string, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := s.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
