package server

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/internal"
	"chat-relay/observability"
)

func newTransferFixture(t *testing.T) (*Session, net.Conn, <-chan event.DomainEvent) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitor, err := observability.NewMonitor(log)
	require.NoError(t, err)

	events := make(chan event.DomainEvent, 8)
	srv := &Server{
		cfg: internal.Config{
			FilesDir:        filepath.Join(t.TempDir(), "files"),
			MaxFileSize:     1 << 20,
			IdleTimeout:     2 * time.Second,
			TransferTimeout: 2 * time.Second,
			WriteTimeout:    2 * time.Second,
		},
		log:     log,
		monitor: monitor,
		events:  events,
	}

	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	sess := newSession(srv, serverSide)
	sess.username = "alice"
	return sess, clientSide, events
}

func TestSession_ReceiveUpload(t *testing.T) {
	req := require.New(t)
	sess, client, events := newTransferFixture(t)
	content := "hello from the upload path"

	// When the client streams the framed upload
	go func() {
		fmt.Fprintf(client, "notes.txt\n%d\n", len(content))
		_, _ = io.WriteString(client, content)
	}()

	// Then the file lands on disk with the exact bytes
	req.NoError(sess.receiveUpload())
	data, err := os.ReadFile(filepath.Join(sess.srv.cfg.FilesDir, "notes.txt"))
	req.NoError(err)
	req.Equal(content, string(data))

	// And a storage event was published
	select {
	case e := <-events:
		stored, ok := e.(event.FileStored)
		req.True(ok)
		req.Equal("notes.txt", stored.FileName)
		req.Equal(int64(len(content)), stored.Size)
		req.Equal("alice", stored.By)
	default:
		req.Fail("expected a FileStored event")
	}
}

func TestSession_ReceiveUpload_SanitizesPath(t *testing.T) {
	req := require.New(t)
	sess, client, _ := newTransferFixture(t)
	content := "owned"

	go func() {
		fmt.Fprintf(client, "../../etc/passwd\n%d\n", len(content))
		_, _ = io.WriteString(client, content)
	}()

	// Then the file is stored under its base name inside the files dir
	req.NoError(sess.receiveUpload())
	_, err := os.Stat(filepath.Join(sess.srv.cfg.FilesDir, "passwd"))
	req.NoError(err)
}

func TestSession_ReceiveUpload_RejectsOversize(t *testing.T) {
	req := require.New(t)
	sess, client, _ := newTransferFixture(t)

	go func() {
		fmt.Fprintf(client, "big.bin\n%d\n", sess.srv.cfg.MaxFileSize+1)
	}()

	err := sess.receiveUpload()
	req.ErrorIs(err, errors.ErrFileTooLarge)
}

func TestSession_ReceiveUpload_Truncated(t *testing.T) {
	req := require.New(t)
	sess, client, _ := newTransferFixture(t)

	// When the client declares more bytes than it sends and disconnects
	go func() {
		fmt.Fprintf(client, "partial.bin\n100\n")
		_, _ = io.WriteString(client, "only this")
		_ = client.Close()
	}()

	err := sess.receiveUpload()
	req.ErrorIs(err, errors.ErrTransferTruncated)

	// And the partial file is left on disk
	data, readErr := os.ReadFile(filepath.Join(sess.srv.cfg.FilesDir, "partial.bin"))
	req.NoError(readErr)
	req.Equal("only this", string(data))
}

func TestSession_ServeDownload(t *testing.T) {
	req := require.New(t)
	sess, client, _ := newTransferFixture(t)
	content := "stored earlier"

	req.NoError(os.MkdirAll(sess.srv.cfg.FilesDir, 0o755))
	req.NoError(os.WriteFile(filepath.Join(sess.srv.cfg.FilesDir, "report.txt"), []byte(content), 0o644))

	done := make(chan error, 1)
	go func() { done <- sess.serveDownload("report.txt") }()

	// Then the client reads a size line followed by exactly that many bytes
	reader := bufio.NewReader(client)
	sizeLine, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal(fmt.Sprintf("%d", len(content)), strings.TrimRight(sizeLine, "\n"))

	body := make([]byte, len(content))
	_, err = io.ReadFull(reader, body)
	req.NoError(err)
	req.Equal(content, string(body))
	req.NoError(<-done)
}

func TestSession_ServeDownload_NotFound(t *testing.T) {
	req := require.New(t)
	sess, client, _ := newTransferFixture(t)

	done := make(chan error, 1)
	go func() { done <- sess.serveDownload("missing.txt") }()

	// Then the sentinel line comes back and no bytes follow
	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal(domain.NotFoundSentinel, strings.TrimRight(line, "\n"))
	req.NoError(<-done)
}
