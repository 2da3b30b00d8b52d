// Package sdd guards gate runs behind spec-driven development artifacts:
// an active work session bound to a change id, and the change's spec
// directory under openspec/. The guard fails closed; only an explicit
// configuration bypass skips it.
package sdd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is the session lifetime applied when none is configured.
const DefaultTTL = 45 * time.Minute

// sessionFile lives under the repo root.
const sessionFile = ".codegate/sdd-session.json"

// Session is the persisted work-session state.
type Session struct {
	Active    bool      `json:"active"`
	ChangeID  string    `json:"changeId"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session is active, bound to a change and
// unexpired at now.
func (s Session) Valid(now time.Time) bool {
	return s.Active && s.ChangeID != "" && !s.ExpiresAt.IsZero() && now.Before(s.ExpiresAt)
}

// SessionStore reads and writes the session file under a repo root.
type SessionStore struct {
	root  string
	clock func() time.Time
}

func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root, clock: time.Now}
}

func (s *SessionStore) WithClock(clock func() time.Time) *SessionStore {
	s.clock = clock
	return s
}

func (s *SessionStore) path() string {
	return filepath.Join(s.root, sessionFile)
}

// Read returns the stored session. A missing file is an inactive
// session, not an error.
func (s *SessionStore) Read() (Session, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("sdd: read session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("sdd: decode session: %w", err)
	}
	return session, nil
}

// Open starts a session for a change id with the given ttl.
func (s *SessionStore) Open(changeID string, ttl time.Duration) (Session, error) {
	if changeID == "" {
		return Session{}, errors.New("sdd: change id required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.clock().UTC()
	session := Session{
		Active:    true,
		ChangeID:  changeID,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return session, s.write(session)
}

// Refresh extends the current session by ttl from now.
func (s *SessionStore) Refresh(ttl time.Duration) (Session, error) {
	session, err := s.Read()
	if err != nil {
		return Session{}, err
	}
	if !session.Active || session.ChangeID == "" {
		return Session{}, errors.New("sdd: no active session to refresh")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.clock().UTC()
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(ttl)
	return session, s.write(session)
}

// Close deactivates the session.
func (s *SessionStore) Close() error {
	session, err := s.Read()
	if err != nil {
		return err
	}
	session.Active = false
	session.UpdatedAt = s.clock().UTC()
	return s.write(session)
}

func (s *SessionStore) write(session Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("sdd: marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path()), 0o755); err != nil {
		return fmt.Errorf("sdd: create session dir: %w", err)
	}
	if err := os.WriteFile(s.path(), data, 0o644); err != nil {
		return fmt.Errorf("sdd: write session: %w", err)
	}
	return nil
}
