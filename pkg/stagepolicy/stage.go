// Package stagepolicy resolves the effective policy bundle for a lifecycle
// stage, layers branch-protection checks on top of rule outcomes, and
// produces the gate decision for a run.
package stagepolicy

import (
	"fmt"

	"github.com/codegate-dev/codegate/pkg/rules"
)

// Stage is a point in the source-control lifecycle at which the gate is
// evaluated. Stages are strictly ordered for a single change.
type Stage string

const (
	StagePreWrite  Stage = "PRE_WRITE"
	StagePreCommit Stage = "PRE_COMMIT"
	StagePrePush   Stage = "PRE_PUSH"
	StageCI        Stage = "CI"
)

var stageRank = map[Stage]int{
	StagePreWrite:  0,
	StagePreCommit: 10,
	StagePrePush:   20,
	StageCI:        30,
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if _, ok := stageRank[stage]; !ok {
		return "", fmt.Errorf("stagepolicy: unknown stage %q", s)
	}
	return stage, nil
}

// Rank returns the stage's position in the lifecycle order.
func (s Stage) Rank() int {
	return stageRank[s]
}

// AtOrAfter reports whether s is at or past other in the lifecycle.
func (s Stage) AtOrAfter(other Stage) bool {
	return s.Rank() >= other.Rank()
}

// PolicyStage maps the evaluation stage onto the stage whose policy
// bundle applies. PRE_WRITE has no bundle of its own; it evaluates
// mid-stream under the PRE_COMMIT policy.
func (s Stage) PolicyStage() Stage {
	if s == StagePreWrite {
		return StagePreCommit
	}
	return s
}

// Stages lists all stages in lifecycle order.
func Stages() []Stage {
	return []Stage{StagePreWrite, StagePreCommit, StagePrePush, StageCI}
}

// RulesForStage filters a merged set to the rules active at a stage. A
// rule carrying a minimum stage applies at that stage and every later
// one; rules without a stage, or with an unknown one, always apply.
func RulesForStage(set rules.Set, stage Stage) rules.Set {
	out := make(rules.Set, 0, len(set))
	for _, r := range set {
		if r.Stage != "" {
			if floor, err := ParseStage(r.Stage); err == nil && !stage.AtOrAfter(floor) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
