package stagepolicy

import (
	"fmt"

	"github.com/codegate-dev/codegate/pkg/canonical"
	"github.com/codegate-dev/codegate/pkg/facts"
)

// Trace sources.
const (
	TraceSourceDefault  = "default"
	TraceSourceHardMode = "hard-mode"
)

// Thresholds are the severity gates a stage enforces.
type Thresholds struct {
	BlockOnOrAbove facts.Severity `json:"blockOnOrAbove" yaml:"blockOnOrAbove"`
	WarnOnOrAbove  facts.Severity `json:"warnOnOrAbove" yaml:"warnOnOrAbove"`
}

// HardMode is the optional stricter profile configuration. When enabled
// with a named profile, the profile's bundle replaces the default bundle
// for every stage.
type HardMode struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Trace records where the resolved policy came from.
type Trace struct {
	Source string `json:"source"`
	Bundle string `json:"bundle"`
	Hash   string `json:"hash,omitempty"`
}

// Resolved is the effective policy for one stage.
type Resolved struct {
	Stage         Stage      `json:"stage"`
	ResolvedStage Stage      `json:"resolved_stage"`
	Policy        Thresholds `json:"policy"`
	Trace         Trace      `json:"trace"`
}

// DefaultThresholds returns the stage defaults: block at ERROR, warn at
// WARN, for every policy stage.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlockOnOrAbove: facts.SeverityError,
		WarnOnOrAbove:  facts.SeverityWarn,
	}
}

// hardModeProfiles maps profile names to their threshold overrides.
// Hard mode only ever tightens: a profile threshold looser than the stage
// default is ignored, so critical-only still blocks at ERROR and matters
// only for bundle selection in the trace. Unknown profiles keep the
// defaults while still switching the bundle id.
var hardModeProfiles = map[string]Thresholds{
	"critical-high": {
		BlockOnOrAbove: facts.SeverityWarn,
		WarnOnOrAbove:  facts.SeverityInfo,
	},
	"critical-only": {
		BlockOnOrAbove: facts.SeverityCritical,
		WarnOnOrAbove:  facts.SeverityError,
	},
}

// Resolve selects the policy bundle and thresholds for a stage. The
// decision trace names the bundle so evidence consumers can see which
// policy applied.
func Resolve(stage Stage, hardMode HardMode) Resolved {
	policyStage := stage.PolicyStage()

	resolved := Resolved{
		Stage:         stage,
		ResolvedStage: policyStage,
		Policy:        DefaultThresholds(),
		Trace: Trace{
			Source: TraceSourceDefault,
			Bundle: fmt.Sprintf("gate-policy.%s", policyStage),
		},
	}

	if hardMode.Enabled && hardMode.Profile != "" {
		resolved.Trace.Source = TraceSourceHardMode
		resolved.Trace.Bundle = fmt.Sprintf("gate-policy.hard-mode.%s.%s", hardMode.Profile, policyStage)
		if profile, known := hardModeProfiles[hardMode.Profile]; known {
			resolved.Policy = tighten(resolved.Policy, profile)
		}
	}

	if hash, err := canonical.Hash(resolved.Policy); err == nil {
		resolved.Trace.Hash = hash
	}
	return resolved
}

// tighten keeps the stricter of the default and profile thresholds.
// A hard-mode profile can never loosen a stage below its defaults.
func tighten(base, profile Thresholds) Thresholds {
	out := base
	if profile.BlockOnOrAbove.Rank() < base.BlockOnOrAbove.Rank() && facts.ValidSeverity(profile.BlockOnOrAbove) {
		out.BlockOnOrAbove = profile.BlockOnOrAbove
	}
	if profile.WarnOnOrAbove.Rank() < base.WarnOnOrAbove.Rank() && facts.ValidSeverity(profile.WarnOnOrAbove) {
		out.WarnOnOrAbove = profile.WarnOnOrAbove
	}
	return out
}
