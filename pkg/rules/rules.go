// Package rules holds the immutable policy rule model and the baseline /
// override rule-set merger. Rules are pure data; matching lives in pkg/gate.
package rules

import (
	"fmt"

	"github.com/codegate-dev/codegate/pkg/facts"
)

// Where constrains the fact a condition matches against. All populated
// fields must hold for the constraint to be satisfied.
type Where struct {
	PathPrefix     string           `json:"pathPrefix,omitempty" yaml:"pathPrefix,omitempty"`
	ChangeType     facts.ChangeType `json:"changeType,omitempty" yaml:"changeType,omitempty"`
	From           string           `json:"from,omitempty" yaml:"from,omitempty"`
	To             string           `json:"to,omitempty" yaml:"to,omitempty"`
	RuleID         string           `json:"ruleId,omitempty" yaml:"ruleId,omitempty"`
	FilePathPrefix string           `json:"filePathPrefix,omitempty" yaml:"filePathPrefix,omitempty"`
}

// Scope filters path-bearing facts before a condition is applied.
// Include and Exclude hold path glob patterns.
type Scope struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Condition describes when a rule fires. Kind must match the candidate
// fact's kind; the remaining fields narrow the match. AnyOf expresses a
// disjunction of nested conditions (Kind is ignored when AnyOf is set).
// Expr is an optional CEL predicate evaluated against the fact.
type Condition struct {
	Kind     facts.Kind  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Where    *Where      `json:"where,omitempty" yaml:"where,omitempty"`
	Contains []string    `json:"contains,omitempty" yaml:"contains,omitempty"`
	Regex    []string    `json:"regex,omitempty" yaml:"regex,omitempty"`
	Expr     string      `json:"expr,omitempty" yaml:"expr,omitempty"`
	AnyOf    []Condition `json:"anyOf,omitempty" yaml:"anyOf,omitempty"`
}

// Consequence is the finding template a matching rule instantiates.
// Code falls back to the rule id when empty.
type Consequence struct {
	Message string `json:"message" yaml:"message"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
}

// Definition is one policy rule. Identity is ID: two rules with the same
// ID in different rule sets are the same logical rule for merge purposes.
// A locked rule's Severity and When survive any override.
type Definition struct {
	ID          string          `json:"id" yaml:"id"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Severity    facts.Severity  `json:"severity" yaml:"severity"`
	Platform    facts.Platform  `json:"platform,omitempty" yaml:"platform,omitempty"`
	Stage       string          `json:"stage,omitempty" yaml:"stage,omitempty"`
	Locked      bool            `json:"locked,omitempty" yaml:"locked,omitempty"`
	When        Condition       `json:"when" yaml:"when"`
	Then        Consequence     `json:"then" yaml:"then"`
	Scope       *Scope          `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Set is an ordered collection of rule definitions.
type Set []Definition

// Index returns the set keyed by rule id. The last occurrence wins, which
// only matters for unvalidated input sets.
func (s Set) Index() map[string]Definition {
	idx := make(map[string]Definition, len(s))
	for _, r := range s {
		idx[r.ID] = r
	}
	return idx
}

// Validate checks the uniqueness and well-formedness invariants a merged
// set must satisfy.
func (s Set) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, r := range s {
		if r.ID == "" {
			return fmt.Errorf("rules: rule with empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("rules: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !facts.ValidSeverity(r.Severity) {
			return fmt.Errorf("rules: rule %q has unknown severity %q", r.ID, r.Severity)
		}
	}
	return nil
}
