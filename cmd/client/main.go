package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gookit/color"
	"github.com/joho/godotenv"

	"chat-relay/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// client is a line-oriented terminal front end: stdin lines go to the
// server, server lines go to stdout. Two local verbs never reach the
// server as-is: /sendfile starts an upload, /download requests a file.
type client struct {
	cfg    Config
	conn   net.Conn
	reader *bufio.Reader

	// pending carries the name of an awaited download so the reader
	// goroutine knows the next size line or sentinel belongs to it.
	pending chan string
}

func run() error {
	_ = godotenv.Load()
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	conn, err := net.Dial("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.ServerAddr, err)
	}
	defer func() { _ = conn.Close() }()

	c := &client{
		cfg:     cfg,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		pending: make(chan string, 1),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readLoop()
	}()

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		line := stdin.Text()
		switch {
		case strings.HasPrefix(line, "/sendfile "):
			if err := c.sendFile(strings.TrimSpace(strings.TrimPrefix(line, "/sendfile "))); err != nil {
				c.printError(fmt.Sprintf("Upload failed: %v", err))
			}
		case strings.HasPrefix(line, "/download "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/download "))
			c.pending <- name
			if _, err := fmt.Fprintf(conn, "%s%s\n", domain.DownloadPrefix, name); err != nil {
				return err
			}
		default:
			if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
				return err
			}
			if line == "/leave" {
				<-done
				return nil
			}
		}
	}

	<-done
	return stdin.Err()
}

// readLoop prints server lines until the connection closes. While a
// download is pending, the first line that is the not-found sentinel or
// a bare integer is claimed as the transfer response; everything else
// stays ordinary chat.
func (c *client) readLoop() {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				c.printError(fmt.Sprintf("Connection lost: %v", err))
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")

		select {
		case name := <-c.pending:
			if line == domain.NotFoundSentinel {
				c.printError(fmt.Sprintf("%s: %s", name, line))
				continue
			}
			if size, convErr := strconv.ParseInt(line, 10, 64); convErr == nil {
				if err := c.receiveFile(name, size); err != nil {
					c.printError(fmt.Sprintf("Download of %s failed: %v", name, err))
					return
				}
				continue
			}
			// A chat line slipped in before the response; keep waiting.
			c.pending <- name
		default:
		}

		c.printServer(line)
	}
}

// sendFile streams a local file to the server using the in-band upload
// framing: trigger line, base name, size, then the raw bytes.
func (c *client) sendFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if _, err := fmt.Fprintf(c.conn, "%s\n%s\n%d\n",
		domain.UploadTrigger, filepath.Base(path), info.Size()); err != nil {
		return err
	}
	written, err := io.Copy(c.conn, in)
	if err != nil {
		return err
	}
	c.printLocal(fmt.Sprintf("Sent %s (%d bytes)", filepath.Base(path), written))
	return nil
}

func (c *client) receiveFile(name string, size int64) error {
	if err := os.MkdirAll(c.cfg.DownloadDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.cfg.DownloadDir, filepath.Base(name))
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	_, copyErr := io.CopyN(out, c.reader, size)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	c.printLocal(fmt.Sprintf("Saved %s (%d bytes)", path, size))
	return nil
}

func (c *client) printServer(line string) {
	if c.cfg.Colours && strings.HasPrefix(line, "[Private from ") {
		fmt.Println(color.New(color.FgMagenta).Render(line))
		return
	}
	fmt.Println(line)
}

func (c *client) printLocal(text string) {
	if c.cfg.Colours {
		text = color.New(color.FgGreen).Render(text)
	}
	fmt.Println(text)
}

func (c *client) printError(text string) {
	if c.cfg.Colours {
		text = color.New(color.FgRed).Render(text)
	}
	fmt.Fprintln(os.Stderr, text)
}
