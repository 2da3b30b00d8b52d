// Package consolidate post-processes raw gate findings, collapsing
// duplicate detections into one canonical finding per rule family and
// file, and derives the suppression analytics consumed by reporting.
//
// Consolidation never fabricates or drops an underlying defect; it only
// changes which rule id is presented as active for a given file.
package consolidate

import (
	"sort"

	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/gate"
)

// Suppression reasons.
const (
	ReasonFamilyPrecedence  = "semantic-family-precedence"
	ReasonManualSuppression = "manual-suppression"
	ReasonDedupe            = "dedupe"
)

// SuppressedFinding records a finding removed during consolidation.
// ReplacedByRuleID is only set for family-precedence suppressions.
type SuppressedFinding struct {
	RuleID           string         `json:"ruleId"`
	File             string         `json:"file"`
	Platform         facts.Platform `json:"platform"`
	Reason           string         `json:"reason"`
	ReplacedByRuleID string         `json:"replacedByRuleId,omitempty"`
}

// Options configures a consolidation pass.
//
// Families links a generic heuristic rule id to the canonical rule id known
// to supersede it; when both fire on the same file, the heuristic finding
// is suppressed in favor of the canonical one. MutedRuleIDs are rules
// deliberately silenced by the project.
type Options struct {
	Families     map[string]string
	MutedRuleIDs map[string]struct{}
}

// Output is the consolidated finding list plus the suppression record.
type Output struct {
	Findings   []gate.Finding      `json:"findings"`
	Suppressed []SuppressedFinding `json:"suppressed"`
}

// Consolidate collapses literal duplicates, muted rules and semantic-family
// shadows. Every suppressed entry corresponds to a finding that was present
// in the raw input of the same run.
func Consolidate(raw []gate.Finding, opts Options) Output {
	out := Output{Suppressed: []SuppressedFinding{}}

	// Pass 1: literal duplicates collapse to their first occurrence.
	seen := make(map[string]struct{}, len(raw))
	deduped := make([]gate.Finding, 0, len(raw))
	for _, f := range raw {
		key := f.Key()
		if _, dup := seen[key]; dup {
			out.Suppressed = append(out.Suppressed, suppressed(f, ReasonDedupe, ""))
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, f)
	}

	// Pass 2: canonical rule ids present per file, for family precedence.
	canonicalByFile := make(map[string]map[string]struct{})
	for _, f := range deduped {
		rulesInFile := canonicalByFile[f.File]
		if rulesInFile == nil {
			rulesInFile = make(map[string]struct{})
			canonicalByFile[f.File] = rulesInFile
		}
		rulesInFile[f.RuleID] = struct{}{}
	}

	for _, f := range deduped {
		if _, muted := opts.MutedRuleIDs[f.RuleID]; muted {
			out.Suppressed = append(out.Suppressed, suppressed(f, ReasonManualSuppression, ""))
			continue
		}
		if canonical, inFamily := opts.Families[f.RuleID]; inFamily {
			if _, present := canonicalByFile[f.File][canonical]; present {
				out.Suppressed = append(out.Suppressed, suppressed(f, ReasonFamilyPrecedence, canonical))
				continue
			}
		}
		out.Findings = append(out.Findings, f)
	}

	sort.SliceStable(out.Suppressed, func(i, j int) bool {
		left, right := out.Suppressed[i], out.Suppressed[j]
		if left.File != right.File {
			return left.File < right.File
		}
		return left.RuleID < right.RuleID
	})
	return out
}

func suppressed(f gate.Finding, reason, replacedBy string) SuppressedFinding {
	return SuppressedFinding{
		RuleID:           f.RuleID,
		File:             f.File,
		Platform:         facts.InferPlatform(f.File),
		Reason:           reason,
		ReplacedByRuleID: replacedBy,
	}
}
