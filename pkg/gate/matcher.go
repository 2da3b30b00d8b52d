// Package gate evaluates a merged rule set against a fact collection and
// produces findings plus rule-coverage statistics. Matching is pure; a rule
// whose condition cannot be evaluated is counted, never thrown.
package gate

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/rules"
)

// MatchSite is one location where a rule's condition held.
type MatchSite struct {
	File   string
	Lines  []int
	Source string
}

// Matcher compiles rule conditions (regular expressions and optional CEL
// predicates) once and then matches them side-effect-free.
type Matcher struct {
	env *cel.Env
}

// NewMatcher creates a matcher with a fresh CEL environment.
func NewMatcher() (*Matcher, error) {
	env, err := newConditionEnv()
	if err != nil {
		return nil, err
	}
	return &Matcher{env: env}, nil
}

type compiledCondition struct {
	cond    rules.Condition
	regexes []*regexp.Regexp
	program cel.Program
	anyOf   []compiledCondition
}

// CompiledRule is a rule definition with its condition machinery compiled.
type CompiledRule struct {
	Rule rules.Definition
	cond compiledCondition
}

// Compile prepares a rule for matching. Malformed regex or CEL conditions
// return an error; the evaluator records such rules as unevaluated.
func (m *Matcher) Compile(rule rules.Definition) (*CompiledRule, error) {
	cond, err := m.compileCondition(rule.When)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	return &CompiledRule{Rule: rule, cond: cond}, nil
}

func (m *Matcher) compileCondition(cond rules.Condition) (compiledCondition, error) {
	compiled := compiledCondition{cond: cond}
	for _, pattern := range cond.Regex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return compiledCondition{}, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		compiled.regexes = append(compiled.regexes, re)
	}
	if cond.Expr != "" {
		prg, err := compileExpr(m.env, cond.Expr)
		if err != nil {
			return compiledCondition{}, err
		}
		compiled.program = prg
	}
	for _, nested := range cond.AnyOf {
		sub, err := m.compileCondition(nested)
		if err != nil {
			return compiledCondition{}, err
		}
		compiled.anyOf = append(compiled.anyOf, sub)
	}
	return compiled, nil
}

// Match returns every site in the fact collection where the rule's
// condition holds. Multiple facts match independently.
func (m *Matcher) Match(rule *CompiledRule, collection []facts.Fact) ([]MatchSite, error) {
	var sites []MatchSite
	for _, f := range collection {
		if !inScope(rule.Rule.Scope, f) {
			continue
		}
		ok, err := matchCondition(rule.cond, f)
		if err != nil {
			return nil, err
		}
		if ok {
			sites = append(sites, MatchSite{File: f.Location(), Source: f.Source})
		}
	}
	return sites, nil
}

func matchCondition(c compiledCondition, f facts.Fact) (bool, error) {
	if len(c.anyOf) > 0 {
		for _, nested := range c.anyOf {
			ok, err := matchCondition(nested, f)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	if c.cond.Kind != f.Kind {
		return false, nil
	}
	if !matchWhere(c.cond.Where, f) {
		return false, nil
	}
	for _, needle := range c.cond.Contains {
		if !strings.Contains(f.Content, needle) {
			return false, nil
		}
	}
	for _, re := range c.regexes {
		if !re.MatchString(f.Content) {
			return false, nil
		}
	}
	if c.program != nil {
		return evalExpr(c.program, f)
	}
	return true, nil
}

func matchWhere(w *rules.Where, f facts.Fact) bool {
	if w == nil {
		return true
	}
	if w.PathPrefix != "" && !strings.HasPrefix(f.Path, w.PathPrefix) {
		return false
	}
	if w.ChangeType != "" && f.ChangeType != w.ChangeType {
		return false
	}
	if w.From != "" && f.From != w.From {
		return false
	}
	if w.To != "" && f.To != w.To {
		return false
	}
	if w.RuleID != "" && f.RuleID != w.RuleID {
		return false
	}
	if w.FilePathPrefix != "" && !strings.HasPrefix(f.FilePath, w.FilePathPrefix) {
		return false
	}
	return true
}

func inScope(scope *rules.Scope, f facts.Fact) bool {
	if scope == nil {
		return true
	}
	location := f.Location()
	if len(scope.Include) > 0 && !matchesAnyGlob(scope.Include, location) {
		return false
	}
	if matchesAnyGlob(scope.Exclude, location) {
		return false
	}
	return true
}

// matchesAnyGlob matches path globs where a trailing "*" also covers
// nested directories, so "apps/backend/*" includes "apps/backend/src/x.ts".
func matchesAnyGlob(patterns []string, location string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, location); err == nil && ok {
			return true
		}
		if strings.HasSuffix(pattern, "*") &&
			strings.HasPrefix(location, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}
