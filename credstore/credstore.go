//go:generate go run go.uber.org/mock/mockgen -source=credstore.go -destination=../mocks/mock_credstore.go -package=mocks

// Package credstore holds the username/password mapping used for
// authentication-on-connect with implicit first-use registration.
//
// Passwords are stored and compared in clear text. This mirrors the
// credential file contract (one "username:password" pair per line) and is
// a known limitation of the protocol, not an oversight.
package credstore

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"chat-relay/errors"
)

type IStore interface {
	// VerifyOrRegister authenticates a username/password pair, registering
	// the username on first use. It reports whether a registration happened.
	VerifyOrRegister(username, password string) (registered bool, err error)
	Count() int
}

type Store struct {
	mu    sync.Mutex
	path  string
	creds map[string]string
	log   *slog.Logger
}

var validate = validator.New()

// credential rejects the two characters the file format cannot carry:
// the colon delimiter and line breaks.
type credential struct {
	Username string `validate:"required,max=64,excludesall=0x3A0x0A0x0D"`
	Password string `validate:"required,max=128,excludesall=0x3A0x0A0x0D"`
}

// Load reads the persisted mapping. A missing or unreadable file is not
// fatal: the store starts empty and the problem is logged.
func Load(path string, log *slog.Logger) *Store {
	s := &Store{path: path, creds: make(map[string]string), log: log}

	f, err := os.Open(path)
	if err != nil {
		log.Warn("No credential file, starting fresh", "path", path, "error", err)
		return s
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		username, password, ok := strings.Cut(line, ":")
		if !ok || username == "" {
			log.Warn("Skipping malformed credential line")
			continue
		}
		s.creds[username] = password
	}
	if err := scanner.Err(); err != nil {
		log.Warn("Credential file partially read", "path", path, "error", err)
	}

	log.Info("Credential store loaded", "users", len(s.creds))
	return s
}

// VerifyOrRegister is a single critical section combining lookup, comparison
// and first-use registration. Two connections racing on the same unseen
// username serialize here: the first writer wins, the second is compared
// against the freshly registered password and rejected on mismatch.
func (s *Store) VerifyOrRegister(username, password string) (bool, error) {
	if err := validate.Struct(credential{Username: username, Password: password}); err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrInvalidCredential, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.creds[username]; ok {
		if stored != password {
			return false, errors.ErrAuthFailed
		}
		return false, nil
	}

	s.creds[username] = password

	// Persist failure is logged but the in-memory registration stands,
	// authoritative until the next successful persist.
	if err := s.persistLocked(); err != nil {
		s.log.Error("Failed to persist credentials", "path", s.path, "error", err)
	}
	return true, nil
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creds)
}

// persistLocked overwrites the credential file with the full mapping.
// Callers must hold s.mu.
func (s *Store) persistLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for username, password := range s.creds {
		if _, err := fmt.Fprintf(w, "%s:%s\n", username, password); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
