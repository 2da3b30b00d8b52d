// Package gitrepo captures the repository state the policy resolver needs:
// whether a git working tree is present and which branch is checked out.
// It is the collaborator boundary for git inspection; the policy core only
// consumes the RepoState value.
package gitrepo

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// RepoState describes the current working tree.
type RepoState struct {
	GitAvailable bool   `json:"git_available"`
	Branch       string `json:"branch,omitempty"`
	Detached     bool   `json:"detached,omitempty"`
}

// Provider yields the repository state for a repo root.
type Provider interface {
	Capture(ctx context.Context, repoRoot string) RepoState
}

// ExecProvider shells out to git. A missing binary or a non-repository
// directory yields GitAvailable=false, never an error: downstream guards
// fail closed on unknown state.
type ExecProvider struct{}

// Capture inspects repoRoot with `git rev-parse`.
func (ExecProvider) Capture(ctx context.Context, repoRoot string) RepoState {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "rev-parse", "--abbrev-ref", "HEAD")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return RepoState{GitAvailable: false}
	}
	branch := strings.TrimSpace(out.String())
	if branch == "HEAD" {
		return RepoState{GitAvailable: true, Detached: true}
	}
	return RepoState{GitAvailable: true, Branch: branch}
}

// StaticProvider returns a fixed state, for tests and dry runs.
type StaticProvider struct {
	State RepoState
}

// Capture returns the fixed state.
func (p StaticProvider) Capture(ctx context.Context, repoRoot string) RepoState {
	return p.State
}
