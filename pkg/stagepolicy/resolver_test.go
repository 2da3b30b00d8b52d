package stagepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/rules"
)

func TestParseStage(t *testing.T) {
	for _, s := range Stages() {
		parsed, err := ParseStage(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStage("POST_MERGE")
	assert.Error(t, err)
}

func TestStageOrdering(t *testing.T) {
	assert.True(t, StageCI.AtOrAfter(StagePrePush))
	assert.True(t, StagePrePush.AtOrAfter(StagePrePush))
	assert.False(t, StagePreWrite.AtOrAfter(StagePreCommit))
}

func TestPolicyStagePreWriteBorrowsPreCommit(t *testing.T) {
	assert.Equal(t, StagePreCommit, StagePreWrite.PolicyStage())
	assert.Equal(t, StageCI, StageCI.PolicyStage())
}

func TestRulesForStage(t *testing.T) {
	set := rules.Set{
		{ID: "always", Severity: facts.SeverityWarn},
		{ID: "push-up", Severity: facts.SeverityError, Stage: "PRE_PUSH"},
		{ID: "ci-only", Severity: facts.SeverityError, Stage: "CI"},
		{ID: "bad-stage", Severity: facts.SeverityInfo, Stage: "SOMEDAY"},
	}

	ids := func(s rules.Set) []string {
		var out []string
		for _, r := range s {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []string{"always", "bad-stage"}, ids(RulesForStage(set, StagePreCommit)))
	assert.Equal(t, []string{"always", "push-up", "bad-stage"}, ids(RulesForStage(set, StagePrePush)))
	assert.Equal(t, []string{"always", "push-up", "ci-only", "bad-stage"}, ids(RulesForStage(set, StageCI)))
}

func TestResolveDefaultBundle(t *testing.T) {
	resolved := Resolve(StagePrePush, HardMode{})

	assert.Equal(t, StagePrePush, resolved.Stage)
	assert.Equal(t, StagePrePush, resolved.ResolvedStage)
	assert.Equal(t, TraceSourceDefault, resolved.Trace.Source)
	assert.Equal(t, "gate-policy.PRE_PUSH", resolved.Trace.Bundle)
	assert.Equal(t, facts.SeverityError, resolved.Policy.BlockOnOrAbove)
	assert.Len(t, resolved.Trace.Hash, 64)
}

func TestResolvePreWriteUsesPreCommitBundle(t *testing.T) {
	resolved := Resolve(StagePreWrite, HardMode{})

	assert.Equal(t, StagePreWrite, resolved.Stage)
	assert.Equal(t, StagePreCommit, resolved.ResolvedStage)
	assert.Equal(t, "gate-policy.PRE_COMMIT", resolved.Trace.Bundle)
}

func TestResolveHardModeBundle(t *testing.T) {
	resolved := Resolve(StagePreCommit, HardMode{Enabled: true, Profile: "critical-high"})

	assert.Equal(t, TraceSourceHardMode, resolved.Trace.Source)
	assert.Equal(t, "gate-policy.hard-mode.critical-high.PRE_COMMIT", resolved.Trace.Bundle)
	assert.Equal(t, facts.SeverityWarn, resolved.Policy.BlockOnOrAbove)
	assert.Equal(t, facts.SeverityInfo, resolved.Policy.WarnOnOrAbove)
}

func TestResolveHardModeNeverLoosens(t *testing.T) {
	// critical-only nominally blocks at CRITICAL, which is looser than
	// the default ERROR threshold. The default wins.
	resolved := Resolve(StageCI, HardMode{Enabled: true, Profile: "critical-only"})

	assert.Equal(t, TraceSourceHardMode, resolved.Trace.Source)
	assert.Equal(t, "gate-policy.hard-mode.critical-only.CI", resolved.Trace.Bundle)
	assert.Equal(t, facts.SeverityError, resolved.Policy.BlockOnOrAbove)
	assert.Equal(t, facts.SeverityWarn, resolved.Policy.WarnOnOrAbove)
}

func TestResolveUnknownProfileKeepsDefaultThresholds(t *testing.T) {
	resolved := Resolve(StageCI, HardMode{Enabled: true, Profile: "no-such-profile"})

	assert.Equal(t, TraceSourceHardMode, resolved.Trace.Source)
	assert.Equal(t, "gate-policy.hard-mode.no-such-profile.CI", resolved.Trace.Bundle)
	assert.Equal(t, DefaultThresholds(), resolved.Policy)
}

func TestResolveHashIsDeterministic(t *testing.T) {
	a := Resolve(StagePreCommit, HardMode{Enabled: true, Profile: "critical-high"})
	b := Resolve(StagePreCommit, HardMode{Enabled: true, Profile: "critical-high"})
	c := Resolve(StagePreCommit, HardMode{})

	assert.Equal(t, a.Trace.Hash, b.Trace.Hash)
	assert.NotEqual(t, a.Trace.Hash, c.Trace.Hash)
}
