// Package receipts records the outcome of every gate check as a small
// signed-off artifact, persisted both as a JSON file next to the
// evidence and in a local SQLite history for later queries.
package receipts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// Version is the receipt schema version this build writes.
const Version = "1"

// ToolAIGateCheck names the gate-check tool in receipts.
const ToolAIGateCheck = "ai_gate_check"

// SourceMCP marks receipts issued by the service surface; SourceCLI
// marks receipts issued by the command line.
const (
	SourceMCP = "mcp"
	SourceCLI = "cli"
)

// Receipt is the persisted record of one gate check.
type Receipt struct {
	Version      string                  `json:"version"`
	Source       string                  `json:"source"`
	Tool         string                  `json:"tool"`
	ReceiptID    string                  `json:"receipt_id"`
	RepoRoot     string                  `json:"repo_root,omitempty"`
	Stage        stagepolicy.Stage       `json:"stage"`
	Status       string                  `json:"status"`
	Allowed      bool                    `json:"allowed"`
	Violations   []stagepolicy.Violation `json:"violations"`
	PolicyBundle string                  `json:"policy_bundle"`
	PolicyHash   string                  `json:"policy_hash,omitempty"`
	EvidenceHash string                  `json:"evidence_hash,omitempty"`
	IssuedAt     time.Time               `json:"issued_at"`
}

// Meta carries the issuance context of a receipt.
type Meta struct {
	Source       string
	RepoRoot     string
	EvidenceHash string
}

// New builds a receipt from a gate decision.
func New(decision stagepolicy.Decision, meta Meta, now time.Time) Receipt {
	violations := decision.Violations
	if violations == nil {
		violations = []stagepolicy.Violation{}
	}
	source := meta.Source
	if source == "" {
		source = SourceCLI
	}
	return Receipt{
		Version:      Version,
		Source:       source,
		Tool:         ToolAIGateCheck,
		ReceiptID:    uuid.New().String(),
		RepoRoot:     meta.RepoRoot,
		Stage:        decision.Stage,
		Status:       decision.Status,
		Allowed:      decision.Allowed,
		Violations:   violations,
		PolicyBundle: decision.Policy.Trace.Bundle,
		PolicyHash:   decision.Policy.Trace.Hash,
		EvidenceHash: meta.EvidenceHash,
		IssuedAt:     now.UTC(),
	}
}

// Validate rejects receipts that are internally incoherent. A receipt
// whose status and allowed flag disagree is treated as tampered or
// corrupt and never trusted.
func (r Receipt) Validate() error {
	if r.Version != Version {
		return fmt.Errorf("receipts: unsupported version %q", r.Version)
	}
	if r.Tool != ToolAIGateCheck {
		return fmt.Errorf("receipts: unknown tool %q", r.Tool)
	}
	if _, err := stagepolicy.ParseStage(string(r.Stage)); err != nil {
		return fmt.Errorf("receipts: %w", err)
	}
	switch r.Status {
	case stagepolicy.StatusAllowed:
		if !r.Allowed {
			return errors.New("receipts: status ALLOWED with allowed=false")
		}
	case stagepolicy.StatusBlocked:
		if r.Allowed {
			return errors.New("receipts: status BLOCKED with allowed=true")
		}
	default:
		return fmt.Errorf("receipts: unknown status %q", r.Status)
	}
	return nil
}

// WriteFile persists the receipt as indented JSON.
func WriteFile(path string, r Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("receipts: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("receipts: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("receipts: write: %w", err)
	}
	return nil
}

// ReadFile loads and validates a stored receipt.
func ReadFile(path string) (Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("receipts: read: %w", err)
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("receipts: decode: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Receipt{}, err
	}
	return r, nil
}
