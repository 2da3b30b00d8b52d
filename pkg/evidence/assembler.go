package evidence

import (
	"sort"
	"time"

	"github.com/codegate-dev/codegate/pkg/consolidate"
	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gate"
	"github.com/codegate-dev/codegate/pkg/ledger"
	"github.com/codegate-dev/codegate/pkg/stagepolicy"
)

// BuildInput carries everything one run contributes to the snapshot.
type BuildInput struct {
	Stage          stagepolicy.Stage
	Findings       []gate.Finding
	Suppressed     []consolidate.SuppressedFinding
	Metrics        *consolidate.Metrics
	Decision       stagepolicy.Decision
	PreviousLedger []ledger.Entry
	Platforms      Platforms
	Rulesets       []RulesetRef
	HumanIntent    string
}

// Assembler builds snapshots deterministically for a fixed clock.
type Assembler struct {
	clock func() time.Time
}

func NewAssembler() *Assembler {
	return &Assembler{clock: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (a *Assembler) WithClock(clock func() time.Time) *Assembler {
	a.clock = clock
	return a
}

// Build assembles a version 2.1 snapshot. Findings are deduplicated by
// identity key and sorted; the ledger advances from the previous run's
// entries; ruleset fingerprints sort lexicographically by bundle so the
// artifact is byte-stable for identical inputs and clock.
func (a *Assembler) Build(in BuildInput) Snapshot {
	now := a.clock().UTC()

	findings := dedupeSort(in.Findings)
	entries := ledger.NewAccumulator().
		WithClock(func() time.Time { return now }).
		Update(in.PreviousLedger, findings)

	rulesets := normalizeRulesets(in.Rulesets)

	outcome := OutcomeFor(findings)

	gateStatus := in.Decision.Status
	if gateStatus == "" {
		gateStatus = stagepolicy.StatusAllowed
		if outcome == OutcomeBlock {
			gateStatus = stagepolicy.StatusBlocked
		}
	}

	suppressed := in.Suppressed
	if suppressed == nil {
		suppressed = []consolidate.SuppressedFinding{}
	}
	violations := in.Decision.Violations
	if violations == nil {
		violations = []stagepolicy.Violation{}
	}
	platforms := in.Platforms
	if platforms == nil {
		platforms = Platforms{}
	}

	return Snapshot{
		Version:   SchemaVersion,
		Timestamp: now,
		Snapshot: RunSnapshot{
			Stage:    in.Stage,
			Outcome:  outcome,
			Findings: findings,
		},
		Ledger:      entries,
		Platforms:   platforms,
		Rulesets:    rulesets,
		HumanIntent: in.HumanIntent,
		AIGate: AIGate{
			Status:      gateStatus,
			Violations:  violations,
			HumanIntent: in.HumanIntent,
		},
		SeverityMetrics: severityMetrics(gateStatus, findings),
		Consolidation: Consolidation{
			Suppressed: suppressed,
			Metrics:    in.Metrics,
		},
	}
}

// normalizeRulesets dedupes fingerprints by (platform, bundle) and sorts
// them so the artifact is stable across runs.
func normalizeRulesets(refs []RulesetRef) []RulesetRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]RulesetRef, 0, len(refs))
	for _, ref := range refs {
		key := string(ref.Platform) + "::" + ref.Bundle
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Bundle < out[j].Bundle
	})
	return out
}

func dedupeSort(findings []gate.Finding) []gate.Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]gate.Finding, 0, len(findings))
	for _, f := range findings {
		key := f.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func severityMetrics(gateStatus string, findings []gate.Finding) SeverityMetrics {
	bySeverity := map[string]int{}
	blocking := 0
	for _, f := range findings {
		bySeverity[string(f.Severity)]++
		if f.Severity.AtLeast(facts.SeverityError) {
			blocking++
		}
	}
	return SeverityMetrics{
		GateStatus:      gateStatus,
		TotalViolations: blocking,
		BySeverity:      bySeverity,
	}
}
