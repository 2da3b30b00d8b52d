// Package ledger maintains first-seen/last-seen identity records for
// findings across repeated gate evaluations. The ledger grows
// monotonically: entries for identities not seen in the current run are
// retained unchanged, and firstSeen is never mutated after creation.
package ledger

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/codegate-dev/codegate/pkg/gate"
)

// Entry tracks one finding identity across runs.
// Identity key = (ruleId, file, lines).
type Entry struct {
	RuleID    string    `json:"ruleId"`
	File      string    `json:"file"`
	Lines     []int     `json:"lines,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Key returns the identity key of the entry.
func (e Entry) Key() string {
	return identityKey(e.RuleID, e.File, e.Lines)
}

func identityKey(ruleID, file string, lines []int) string {
	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = strconv.Itoa(line)
	}
	return ruleID + "::" + file + "::" + strings.Join(parts, ",")
}

// Accumulator applies one run's findings to a prior ledger.
type Accumulator struct {
	clock func() time.Time
}

// NewAccumulator creates an accumulator using the wall clock.
func NewAccumulator() *Accumulator {
	return &Accumulator{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (a *Accumulator) WithClock(clock func() time.Time) *Accumulator {
	a.clock = clock
	return a
}

// Update folds the current run's findings into the prior entries. New
// identities get firstSeen = lastSeen = now; re-occurring identities keep
// firstSeen and advance lastSeen to now; unseen identities pass through
// untouched. The result is sorted by identity key.
func (a *Accumulator) Update(previous []Entry, findings []gate.Finding) []Entry {
	now := a.clock().UTC()

	merged := make(map[string]Entry, len(previous)+len(findings))
	for _, entry := range previous {
		merged[entry.Key()] = entry
	}

	for _, f := range findings {
		key := identityKey(f.RuleID, f.File, f.Lines)
		if prior, exists := merged[key]; exists {
			prior.LastSeen = now
			merged[key] = prior
			continue
		}
		merged[key] = Entry{
			RuleID:    f.RuleID,
			File:      f.File,
			Lines:     f.Lines,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	entries := make([]Entry, 0, len(merged))
	for _, entry := range merged {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key() < entries[j].Key()
	})
	return entries
}
