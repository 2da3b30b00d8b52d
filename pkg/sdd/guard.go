package sdd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// Decision codes, ordered from most to least fundamental. Evaluation
// stops at the first failing check.
const (
	CodeAllowed         = "ALLOWED"
	CodeOpenSpecMissing = "OPENSPEC_MISSING"
	CodeSessionMissing  = "SDD_SESSION_MISSING"
	CodeSessionInvalid  = "SDD_SESSION_INVALID"
	CodeChangeArchived  = "SDD_CHANGE_ARCHIVED"
	CodeChangeMissing   = "SDD_CHANGE_MISSING"
	CodeValidationError = "SDD_VALIDATION_ERROR"
)

// Decision is the guard's verdict for one stage.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Guard evaluates the spec-artifact requirements for a repo root.
type Guard struct {
	root     string
	sessions *SessionStore
	bypass   bool
	clock    func() time.Time
}

func NewGuard(root string) *Guard {
	return &Guard{
		root:     root,
		sessions: NewSessionStore(root),
		clock:    time.Now,
	}
}

// WithBypass enables the emergency override. Bypass is a deliberate
// configuration decision, never an inferred default.
func (g *Guard) WithBypass(bypass bool) *Guard {
	g.bypass = bypass
	return g
}

func (g *Guard) WithClock(clock func() time.Time) *Guard {
	g.clock = clock
	g.sessions.WithClock(clock)
	return g
}

func allowed(message string) Decision {
	return Decision{Allowed: true, Code: CodeAllowed, Message: message}
}

func blocked(code, message string) Decision {
	return Decision{Allowed: false, Code: code, Message: message}
}

func (g *Guard) changeDir(changeID string) string {
	return filepath.Join(g.root, "openspec", "changes", changeID)
}

func (g *Guard) archiveDir(changeID string) string {
	return filepath.Join(g.root, "openspec", "changes", "archive", changeID)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Evaluate runs the guard checks in order: workspace, session, change
// artifacts, then content validation. PRE_WRITE stops before content
// validation; a session mid-edit only needs to exist and point at a
// live change.
func (g *Guard) Evaluate(stage stagepolicy.Stage) Decision {
	if g.bypass {
		return allowed("sdd bypass active; enforcement skipped by explicit override")
	}

	if !dirExists(filepath.Join(g.root, "openspec")) {
		return blocked(CodeOpenSpecMissing, "openspec workspace not found in repository")
	}

	session, err := g.sessions.Read()
	if err != nil {
		return blocked(CodeSessionInvalid, err.Error())
	}
	if !session.Active {
		return blocked(CodeSessionMissing, "sdd session is not active; open a session for a change")
	}
	if !session.Valid(g.clock()) {
		return blocked(CodeSessionInvalid, "sdd session is invalid or expired; refresh or reopen it")
	}
	if dirExists(g.archiveDir(session.ChangeID)) {
		return blocked(CodeChangeArchived,
			fmt.Sprintf("change %q is archived; open a session for an active change", session.ChangeID))
	}
	if !dirExists(g.changeDir(session.ChangeID)) {
		return blocked(CodeChangeMissing,
			fmt.Sprintf("change %q not found under openspec/changes", session.ChangeID))
	}

	if stage == stagepolicy.StagePreWrite {
		return allowed("sdd pre-write checks passed with active valid session")
	}

	if err := g.validateChange(session.ChangeID); err != nil {
		return blocked(CodeValidationError, err.Error())
	}
	return allowed("sdd validation passed for active change")
}

// validateChange checks the change directory carries the required spec
// artifacts with content.
func (g *Guard) validateChange(changeID string) error {
	dir := g.changeDir(changeID)
	for _, name := range []string{"proposal.md", "tasks.md"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("change %q is missing %s", changeID, name)
		}
		if info.Size() == 0 {
			return fmt.Errorf("change %q has an empty %s", changeID, name)
		}
	}
	return nil
}

// Sessions exposes the guard's session store for CLI session commands.
func (g *Guard) Sessions() *SessionStore {
	return g.sessions
}
