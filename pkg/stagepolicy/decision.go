package stagepolicy

import (
	"fmt"
	"time"

	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gate"
	"github.com/codegate-dev/codegate/pkg/gitrepo"
)

// Gate statuses.
const (
	StatusAllowed = "ALLOWED"
	StatusBlocked = "BLOCKED"
)

// Violation codes raised by the resolver itself. Rule findings surface
// under their own codes.
const (
	CodeProtectedBranch     = "GITFLOW_PROTECTED_BRANCH"
	CodeEvidenceMissing     = "EVIDENCE_MISSING"
	CodeEvidenceInvalid     = "EVIDENCE_INVALID"
	CodeEvidenceBadTime     = "EVIDENCE_TIMESTAMP_INVALID"
	CodeEvidenceStale       = "EVIDENCE_STALE"
	CodeEvidenceGateBlocked = "EVIDENCE_GATE_BLOCKED"
)

// Violation is one reason a decision blocks or warns.
type Violation struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity facts.Severity `json:"severity"`
}

// Decision is the outcome of one gate evaluation for one stage.
// Violations are findings at or above the blocking threshold plus the
// evidence and branch checks; Warnings are findings that cross the warn
// threshold without blocking.
type Decision struct {
	Stage      Stage       `json:"stage"`
	Status     string      `json:"status"`
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
	Warnings   []Violation `json:"warnings"`
	Policy     Resolved    `json:"policy"`
}

// DefaultProtectedBranches are blocked for direct work unless the project
// overrides the list.
func DefaultProtectedBranches() []string {
	return []string{"main", "master", "develop", "dev"}
}

// DefaultMaxEvidenceAge returns the per-stage evidence freshness windows.
func DefaultMaxEvidenceAge() map[Stage]time.Duration {
	return map[Stage]time.Duration{
		StagePreWrite:  5 * time.Minute,
		StagePreCommit: 15 * time.Minute,
		StagePrePush:   30 * time.Minute,
		StageCI:        2 * time.Hour,
	}
}

// EvidenceStatus is the resolver's view of the persisted snapshot: the
// read outcome plus the fields the freshness and gate checks need. The
// evidence reader produces it; the resolver never touches disk.
type EvidenceStatus struct {
	Kind       string    // "valid", "invalid", "missing"
	Version    string    // version string for invalid diagnostics
	Timestamp  time.Time // zero when unparseable
	GateStatus string    // stored ai_gate.status when valid
}

// EvidenceStatus kinds.
const (
	EvidenceValid   = "valid"
	EvidenceInvalid = "invalid"
	EvidenceMissing = "missing"
)

func errorViolation(code, message string) Violation {
	return Violation{Code: code, Message: message, Severity: facts.SeverityError}
}

// CheckEvidence derives the freshness/validity violations for a stage.
// An unrecognized snapshot version arrives here as kind "invalid" and
// degrades to violations rather than crashing the run.
func CheckEvidence(stage Stage, status EvidenceStatus, now time.Time, maxAge map[Stage]time.Duration) []Violation {
	limit := maxAge[stage]

	switch status.Kind {
	case EvidenceMissing:
		return []Violation{errorViolation(CodeEvidenceMissing, "evidence snapshot is missing")}
	case EvidenceInvalid:
		msg := "evidence snapshot is invalid"
		if status.Version != "" {
			msg = fmt.Sprintf("evidence snapshot is invalid (version=%s)", status.Version)
		}
		return []Violation{errorViolation(CodeEvidenceInvalid, msg)}
	}

	var violations []Violation
	if status.Timestamp.IsZero() {
		return []Violation{errorViolation(CodeEvidenceBadTime, "evidence timestamp is invalid")}
	}

	age := now.Sub(status.Timestamp)
	if age < 0 {
		age = 0
	}
	if age > limit {
		violations = append(violations, errorViolation(CodeEvidenceStale,
			fmt.Sprintf("evidence is stale (%ds > %ds for %s)",
				int(age.Seconds()), int(limit.Seconds()), stage)))
	}
	if status.GateStatus == StatusBlocked {
		violations = append(violations, errorViolation(CodeEvidenceGateBlocked,
			"stored evidence gate status is BLOCKED"))
	}
	return violations
}

// CheckBranch layers branch protection on top of rule outcomes. The check
// is independent of stored evidence: a protected branch forces BLOCKED
// even when evidence says ALLOWED. Unknown repo state yields no branch
// violation here; mutating operations fail closed separately.
func CheckBranch(repo gitrepo.RepoState, protected []string) []Violation {
	if !repo.GitAvailable || repo.Branch == "" {
		return nil
	}
	for _, name := range protected {
		if repo.Branch == name {
			return []Violation{errorViolation(CodeProtectedBranch,
				fmt.Sprintf("direct work on protected branch %q is not allowed", repo.Branch))}
		}
	}
	return nil
}

// FindingViolations converts consolidated findings at or above the stage's
// blocking threshold into decision violations.
func FindingViolations(findings []gate.Finding, policy Thresholds) []Violation {
	var violations []Violation
	for _, f := range findings {
		if !f.Severity.AtLeast(policy.BlockOnOrAbove) {
			continue
		}
		violations = append(violations, Violation{
			Code:     f.Code,
			Message:  f.Message,
			Severity: f.Severity,
		})
	}
	return violations
}

// FindingWarnings collects findings that cross the warn threshold but sit
// below the blocking threshold. Warnings surface in the decision without
// affecting its status.
func FindingWarnings(findings []gate.Finding, policy Thresholds) []Violation {
	var warnings []Violation
	for _, f := range findings {
		if !f.Severity.AtLeast(policy.WarnOnOrAbove) || f.Severity.AtLeast(policy.BlockOnOrAbove) {
			continue
		}
		warnings = append(warnings, Violation{
			Code:     f.Code,
			Message:  f.Message,
			Severity: f.Severity,
		})
	}
	return warnings
}

// GateParams are the inputs to one gate decision.
type GateParams struct {
	Stage             Stage
	HardMode          HardMode
	Findings          []gate.Finding
	Evidence          *EvidenceStatus
	Repo              gitrepo.RepoState
	ProtectedBranches []string
	MaxEvidenceAge    map[Stage]time.Duration
	Now               time.Time
}

// EvaluateGate resolves the stage policy and composes finding, evidence
// and branch-protection violations into one decision. The decision is a
// total function of its inputs: a dry run and a real run over the same
// parameters produce identical decisions.
func EvaluateGate(params GateParams) Decision {
	resolved := Resolve(params.Stage, params.HardMode)

	protected := params.ProtectedBranches
	if protected == nil {
		protected = DefaultProtectedBranches()
	}
	maxAge := params.MaxEvidenceAge
	if maxAge == nil {
		maxAge = DefaultMaxEvidenceAge()
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	violations := FindingViolations(params.Findings, resolved.Policy)
	if params.Evidence != nil {
		violations = append(violations, CheckEvidence(params.Stage, *params.Evidence, now, maxAge)...)
	}
	violations = append(violations, CheckBranch(params.Repo, protected)...)
	warnings := FindingWarnings(params.Findings, resolved.Policy)

	// Threshold filtering already happened in FindingViolations, so any
	// violation, whatever its severity, forces BLOCKED.
	blocked := len(violations) > 0

	status := StatusAllowed
	if blocked {
		status = StatusBlocked
	}
	if violations == nil {
		violations = []Violation{}
	}
	if warnings == nil {
		warnings = []Violation{}
	}
	return Decision{
		Stage:      params.Stage,
		Status:     status,
		Allowed:    !blocked,
		Violations: violations,
		Warnings:   warnings,
		Policy:     resolved,
	}
}

// PromoteSeverities raises the configured rule ids to ERROR at PRE_PUSH
// and CI when their merged severity sits below ERROR. Later stages never
// demote.
func PromoteSeverities(findings []gate.Finding, stage Stage, promoteRuleIDs []string) []gate.Finding {
	if !stage.AtOrAfter(StagePrePush) || len(promoteRuleIDs) == 0 {
		return findings
	}
	promote := make(map[string]struct{}, len(promoteRuleIDs))
	for _, id := range promoteRuleIDs {
		promote[id] = struct{}{}
	}
	out := make([]gate.Finding, len(findings))
	copy(out, findings)
	for i := range out {
		if _, ok := promote[out[i].RuleID]; ok && !out[i].Severity.AtLeast(facts.SeverityError) {
			out[i].Severity = facts.SeverityError
		}
	}
	return out
}
