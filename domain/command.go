package domain

import (
	"strconv"
	"strings"

	"chat-relay/errors"
)

// Wire triggers that switch the connection out of plain chat mode.
const (
	UploadTrigger  = "FILE_UPLOAD"
	DownloadPrefix = "DOWNLOAD "

	// NotFoundSentinel is the download failure reply. No bytes follow it.
	NotFoundSentinel = "File not found"
)

// Command is a parsed client command line.
type Command interface {
	Name() string
}

type PrivateMessageCommand struct {
	Target string
	Text   string
}

func (PrivateMessageCommand) Name() string { return "pm" }

type JoinCommand struct {
	Room string
}

func (JoinCommand) Name() string { return "join" }

type HelpCommand struct{}

func (HelpCommand) Name() string { return "help" }

type LeaveCommand struct{}

func (LeaveCommand) Name() string { return "leave" }

type HistoryCommand struct {
	Limit int
}

func (HistoryCommand) Name() string { return "history" }

type SearchCommand struct {
	Terms string
}

func (SearchCommand) Name() string { return "search" }

type StatsCommand struct{}

func (StatsCommand) Name() string { return "stats" }

// UnknownCommand carries an unrecognized verb back to the session
// so it can answer with a notice instead of failing.
type UnknownCommand struct {
	Verb string
}

func (UnknownCommand) Name() string { return "unknown" }

const defaultHistoryLimit = 20

// UsageError is returned for a recognized verb with malformed arguments.
// Its message is the usage notice to send back to the offending session.
type UsageError struct {
	Usage string
}

func (e UsageError) Error() string { return e.Usage }

func (e UsageError) Unwrap() error { return errors.ErrMalformedCommand }

// ParseCommand turns a slash-prefixed line into a typed command.
// Malformed arguments yield a UsageError wrapping ErrMalformedCommand.
// Unrecognized verbs are not errors; they parse into UnknownCommand.
func ParseCommand(line string) (Command, error) {
	verb := line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		verb = line[:i]
	}

	switch verb {
	case "/pm":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 || parts[1] == "" || strings.TrimSpace(parts[2]) == "" {
			return nil, UsageError{Usage: "Usage: /pm <username> <message>"}
		}
		return PrivateMessageCommand{Target: parts[1], Text: parts[2]}, nil

	case "/join":
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, UsageError{Usage: "Usage: /join <room>"}
		}
		return JoinCommand{Room: strings.TrimSpace(parts[1])}, nil

	case "/help":
		return HelpCommand{}, nil

	case "/leave":
		return LeaveCommand{}, nil

	case "/history":
		limit := defaultHistoryLimit
		parts := strings.Fields(line)
		if len(parts) > 1 {
			n, err := strconv.Atoi(parts[1])
			if err != nil || n <= 0 {
				return nil, UsageError{Usage: "Usage: /history [count]"}
			}
			limit = n
		}
		return HistoryCommand{Limit: limit}, nil

	case "/search":
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, UsageError{Usage: "Usage: /search <terms>"}
		}
		return SearchCommand{Terms: strings.TrimSpace(parts[1])}, nil

	case "/stats":
		return StatsCommand{}, nil

	default:
		return UnknownCommand{Verb: verb}, nil
	}
}
