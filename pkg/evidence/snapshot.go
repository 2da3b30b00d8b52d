// Package evidence assembles, persists and reads the versioned snapshot
// that records what the gate saw and decided for a run. The snapshot is
// the only artifact later stages trust; anything unreadable or from an
// unknown schema version degrades to violations rather than crashing.
package evidence

import (
	"time"

	"github.com/codegate-dev/codegate/pkg/consolidate"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gate"
	"github.com/codegate-dev/codegate/pkg/ledger"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// SchemaVersion is the snapshot schema this build writes and accepts.
const SchemaVersion = "2.1"

// Gate outcomes summarizing the consolidated findings of a run.
const (
	OutcomeBlock = "BLOCK"
	OutcomeWarn  = "WARN"
	OutcomePass  = "PASS"
)

// RulesetRef fingerprints one policy bundle that was active for a run.
type RulesetRef struct {
	Platform facts.Platform `json:"platform"`
	Bundle   string         `json:"bundle"`
	Hash     string         `json:"hash"`
}

// PlatformState records whether a platform was detected for the run and
// how confident the inference was.
type PlatformState struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

// Platforms maps platform name to its detection state. JSON keys
// marshal in sorted order.
type Platforms map[facts.Platform]PlatformState

// RunSnapshot is the inner per-run section: the stage, outcome and the
// consolidated findings that produced it.
type RunSnapshot struct {
	Stage    stagepolicy.Stage `json:"stage"`
	Outcome  string            `json:"outcome"`
	Findings []gate.Finding    `json:"findings"`
}

// SeverityMetrics summarizes blocking pressure for downstream consumers.
// TotalViolations counts consolidated findings at ERROR or CRITICAL.
type SeverityMetrics struct {
	GateStatus      string         `json:"gate_status"`
	TotalViolations int            `json:"total_violations"`
	BySeverity      map[string]int `json:"by_severity"`
}

// Consolidation carries the suppression record so reviewers can audit
// what the consolidator removed and why.
type Consolidation struct {
	Suppressed []consolidate.SuppressedFinding `json:"suppressed"`
	Metrics    *consolidate.Metrics            `json:"suppression_metrics,omitempty"`
}

// AIGate mirrors the gate decision into the snapshot.
type AIGate struct {
	Status      string                  `json:"status"`
	Violations  []stagepolicy.Violation `json:"violations"`
	HumanIntent string                  `json:"human_intent,omitempty"`
}

// Snapshot is the persisted evidence artifact, schema version 2.1.
type Snapshot struct {
	Version         string          `json:"version"`
	Timestamp       time.Time       `json:"timestamp"`
	Snapshot        RunSnapshot     `json:"snapshot"`
	Ledger          []ledger.Entry  `json:"ledger"`
	Platforms       Platforms       `json:"platforms"`
	Rulesets        []RulesetRef    `json:"rulesets"`
	HumanIntent     string          `json:"human_intent,omitempty"`
	AIGate          AIGate          `json:"ai_gate"`
	SeverityMetrics SeverityMetrics `json:"severity_metrics"`
	Consolidation   Consolidation   `json:"consolidation"`
}

// OutcomeFor classifies a consolidated finding set: BLOCK when any
// CRITICAL finding remains, WARN when anything remains, PASS otherwise.
func OutcomeFor(findings []gate.Finding) string {
	for _, f := range findings {
		if f.Severity == facts.SeverityCritical {
			return OutcomeBlock
		}
	}
	if len(findings) > 0 {
		return OutcomeWarn
	}
	return OutcomePass
}
