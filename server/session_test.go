package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/credstore"
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/sink"
)

type sessionFixture struct {
	srv      *Server
	registry *Registry
	events   chan event.DomainEvent
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	dir := t.TempDir()

	cfg := internal.Config{
		CredentialsPath: filepath.Join(dir, "credentials.txt"),
		ChatLogPath:     filepath.Join(dir, "chat.log"),
		FilesDir:        filepath.Join(dir, "files"),
		IdleTimeout:     2 * time.Second,
		TransferTimeout: 2 * time.Second,
		WriteTimeout:    2 * time.Second,
		MaxFileSize:     1 << 20,
		HistoryLimit:    100,
	}

	creds := credstore.Load(cfg.CredentialsPath, log)
	chatLog, err := sink.NewChatLog(cfg.ChatLogPath, log)
	req.NoError(err)
	t.Cleanup(func() { _ = chatLog.Close() })

	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	req.NoError(err)
	monitor, err := observability.NewMonitor(log)
	req.NoError(err)

	registry := NewRegistry()
	events := make(chan event.DomainEvent, 32)
	srv := NewServer(cfg, log, creds, registry, NewRelay(registry, log), chatLog,
		mocks.NewMockIArchiveRepository(ctrl), mocks.NewMockISearchIndex(ctrl),
		moderator, monitor, events)

	return &sessionFixture{srv: srv, registry: registry, events: events}
}

// connect spawns a session over an in-memory pipe and returns the client
// side with a buffered reader over it.
func (f *sessionFixture) connect(t *testing.T, ctx context.Context) (net.Conn, *bufio.Reader) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	sess := newSession(f.srv, serverSide)
	go sess.run(ctx)
	return clientSide, bufio.NewReader(clientSide)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

func login(t *testing.T, conn net.Conn, r *bufio.Reader, username, password string) {
	t.Helper()
	req := require.New(t)
	req.Equal("Enter your username:", readLine(t, r))
	fmt.Fprintf(conn, "%s\n", username)
	req.Equal("Enter your password:", readLine(t, r))
	fmt.Fprintf(conn, "%s\n", password)
}

func TestSession_RegisterAndWelcome(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// When an unknown user connects
	conn, r := f.connect(t, ctx)
	login(t, conn, r, "alice", "secret")

	// Then the registration notice and the welcome line come back
	req.Equal("Username not found. Registering new user.", readLine(t, r))
	req.Equal("Welcome to the chat, alice! Type /help for commands.", readLine(t, r))

	// And the session landed in the default room
	req.Eventually(func() bool {
		_, ok := f.registry.FindSession("alice")
		return ok &&f.registry.RoomCount() == 1
	}, time.Second, 10*time.Millisecond)

	// When the user leaves
	fmt.Fprintf(conn, "/leave\n")
	req.Equal("Goodbye!", readLine(t, r))
	req.Eventually(func() bool {
		_, ok := f.registry.FindSession("alice")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestSession_WrongPasswordDisconnects(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given alice is registered
	_, err := f.srv.creds.VerifyOrRegister("alice", "secret")
	req.NoError(err)

	// When she presents the wrong password
	conn, r := f.connect(t, ctx)
	login(t, conn, r, "alice", "guess")

	// Then the connection is refused then closed
	req.Equal("Incorrect password. Disconnecting.", readLine(t, r))
	_, readErr := r.ReadString('\n')
	req.Error(readErr)
}

func TestSession_DuplicateLoginRefused(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn1, r1 := f.connect(t, ctx)
	login(t, conn1, r1, "alice", "secret")
	req.Equal("Username not found. Registering new user.", readLine(t, r1))
	req.Equal("Welcome to the chat, alice! Type /help for commands.", readLine(t, r1))

	// When a second connection claims the same identity
	conn2, r2 := f.connect(t, ctx)
	login(t, conn2, r2, "alice", "secret")
	req.Equal("User alice is already connected. Disconnecting.", readLine(t, r2))

	// Then the original session survives
	_, ok := f.registry.FindSession("alice")
	req.True(ok)
	fmt.Fprintf(conn1, "/leave\n")
	req.Equal("Goodbye!", readLine(t, r1))
}

func TestSession_RoomRelayAndPrivateMessages(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceConn, aliceR := f.connect(t, ctx)
	login(t, aliceConn, aliceR, "alice", "pw1")
	readLine(t, aliceR) // registration notice
	readLine(t, aliceR) // welcome

	bobConn, bobR := f.connect(t, ctx)
	login(t, bobConn, bobR, "bob", "pw2")
	readLine(t, bobR)
	readLine(t, bobR)

	// Then alice sees bob join the shared room
	req.Equal("bob has joined the room.", readLine(t, aliceR))

	// When alice speaks, bob hears it tagged and alice gets no echo
	fmt.Fprintf(aliceConn, "hello everyone\n")
	req.Equal("[alice]: hello everyone", readLine(t, bobR))

	// When bob sends a private message
	fmt.Fprintf(bobConn, "/pm alice psst\n")
	req.Equal("[Private from bob]: psst", readLine(t, aliceR))

	// When bob targets a ghost
	fmt.Fprintf(bobConn, "/pm carol hi\n")
	req.Equal("User carol not found.", readLine(t, bobR))

	// When bob moves to another room, alice is notified and stops hearing him
	fmt.Fprintf(bobConn, "/join gaming\n")
	req.Equal("bob has left the room.", readLine(t, aliceR))
	fmt.Fprintf(aliceConn, "anyone here?\n")
	fmt.Fprintf(bobConn, "/pm alice still reachable\n")
	req.Equal("[Private from bob]: still reachable", readLine(t, aliceR))
}

func TestSession_ModerationAppliesBeforeRelay(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceConn, aliceR := f.connect(t, ctx)
	login(t, aliceConn, aliceR, "alice", "pw1")
	readLine(t, aliceR)
	readLine(t, aliceR)

	bobConn, bobR := f.connect(t, ctx)
	login(t, bobConn, bobR, "bob", "pw2")
	readLine(t, bobR)
	readLine(t, bobR)
	readLine(t, aliceR) // join notice

	// When alice uses a forbidden word
	fmt.Fprintf(aliceConn, "you badger!\n")

	// Then bob receives the masked line
	req.Equal("[alice]: you ******!", readLine(t, bobR))

	// And the published event carries the masked content too
	req.Eventually(func() bool {
		for {
			select {
			case e := <-f.events:
				if posted, ok := e.(event.MessagePosted); ok {
					return posted.Content == "you ******!"
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)
}

func TestSession_UnknownCommandAndUsage(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, r := f.connect(t, ctx)
	login(t, conn, r, "alice", "secret")
	readLine(t, r)
	readLine(t, r)

	fmt.Fprintf(conn, "/teleport home\n")
	req.Equal("Unknown command. Type /help for a list of commands.", readLine(t, r))

	fmt.Fprintf(conn, "/pm bob\n")
	req.Equal("Usage: /pm <username> <message>", readLine(t, r))

	fmt.Fprintf(conn, "/join\n")
	req.Equal("Usage: /join <room>", readLine(t, r))
}
