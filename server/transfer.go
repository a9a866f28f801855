package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
)

// receiveUpload consumes an upload after the trigger line: a filename
// line, a size line, then exactly size raw bytes. There is no ack on
// success; the sender just resumes line mode. Any failure leaves the
// stream position unknown, so callers must tear the session down.
func (s *Session) receiveUpload() error {
	name, err := s.readLine(s.srv.cfg.IdleTimeout)
	if err != nil {
		return fmt.Errorf("reading file name: %w", err)
	}
	sizeLine, err := s.readLine(s.srv.cfg.IdleTimeout)
	if err != nil {
		return fmt.Errorf("reading file size: %w", err)
	}

	size, err := strconv.ParseInt(sizeLine, 10, 64)
	if err != nil || size < 0 {
		return fmt.Errorf("invalid file size %q: %w", sizeLine, errors.ErrTransferTruncated)
	}
	if size > s.srv.cfg.MaxFileSize {
		return fmt.Errorf("%d bytes for %q: %w", size, name, errors.ErrFileTooLarge)
	}

	// Strip any directory component; clients only ever name a file.
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid file name %q: %w", name, errors.ErrTransferTruncated)
	}

	if err := os.MkdirAll(s.srv.cfg.FilesDir, 0o755); err != nil {
		return fmt.Errorf("creating files dir: %w", err)
	}
	path := filepath.Join(s.srv.cfg.FilesDir, name)
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	// The body bypasses line framing: it is read straight from the
	// buffered reader so bytes already buffered are not lost.
	_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.TransferTimeout))
	written, copyErr := io.CopyN(out, s.reader, size)
	closeErr := out.Close()
	if copyErr != nil {
		// The partial file stays on disk for inspection.
		return fmt.Errorf("after %d of %d bytes of %s: %w", written, size, name, errors.ErrTransferTruncated)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", path, closeErr)
	}

	mime := "application/octet-stream"
	if detected, err := mimetype.DetectFile(path); err == nil {
		mime = detected.String()
	}

	s.srv.monitor.IncrFilesStored()
	s.srv.monitor.AddBytesTransferred(uint64(written))
	s.srv.log.Info("File stored", "user", s.username, "file", name, "size", written, "mime", mime)
	s.srv.publish(event.FileStored{
		FileName: name,
		Size:     written,
		MimeType: mime,
		By:       s.username,
		At:       time.Now().UTC(),
	})
	return nil
}

// serveDownload answers a download request with a size line followed by
// the raw body, or the not-found sentinel line. The size line and the
// body go out under one writer lock hold so a concurrent broadcast can
// never land inside the byte stream.
func (s *Session) serveDownload(name string) error {
	name = filepath.Base(name)
	path := filepath.Join(s.srv.cfg.FilesDir, name)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.srv.monitor.IncrTransferErrors()
		return s.SendMessage(domain.NotFoundSentinel)
	}

	in, err := os.Open(path)
	if err != nil {
		s.srv.monitor.IncrTransferErrors()
		return s.SendMessage(domain.NotFoundSentinel)
	}
	defer func() { _ = in.Close() }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.TransferTimeout))
	if _, err := s.writer.WriteString(strconv.FormatInt(info.Size(), 10) + "\n"); err != nil {
		return err
	}
	written, err := io.Copy(s.writer, in)
	if err != nil {
		return fmt.Errorf("after %d of %d bytes of %s: %w", written, info.Size(), name, err)
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	s.srv.monitor.IncrFilesServed()
	s.srv.monitor.AddBytesTransferred(uint64(written))
	s.srv.log.Info("File served", "user", s.username, "file", name, "size", written)
	return nil
}
