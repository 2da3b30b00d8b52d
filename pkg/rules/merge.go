package rules

// Merge combines a baseline rule set with a project override set into one
// effective set.
//
// Locked semantics: a baseline rule with Locked=true is carried into the
// merged set exactly as defined in the baseline, regardless of whether an
// override with the same id exists or what it contains. Overrides can
// neither lower a locked rule's severity nor loosen its condition, and
// omitting the rule from the override set does not remove it.
//
// Unlocked baseline rules are fully replaced by a same-id override,
// including severity downgrades. Unlocked baseline rules with no override
// are retained: the merge is additive unless explicitly overridden.
// Override rules with no baseline counterpart are included as-is.
//
// Ordering: baseline rules first in baseline order, then new override
// rules in override order. The result has no duplicate ids as long as the
// inputs are individually duplicate-free.
func Merge(baseline, override Set) Set {
	overrideByID := override.Index()
	baselineIDs := make(map[string]struct{}, len(baseline))

	merged := make(Set, 0, len(baseline)+len(override))
	for _, base := range baseline {
		baselineIDs[base.ID] = struct{}{}
		if base.Locked {
			merged = append(merged, base)
			continue
		}
		if repl, ok := overrideByID[base.ID]; ok {
			merged = append(merged, repl)
			continue
		}
		merged = append(merged, base)
	}

	for _, extra := range override {
		if _, shadowed := baselineIDs[extra.ID]; shadowed {
			continue
		}
		merged = append(merged, extra)
	}

	return merged
}
