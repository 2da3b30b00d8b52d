package gate

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/rules"
)

// Finding is a concrete rule match against a fact.
type Finding struct {
	RuleID   string         `json:"ruleId"`
	Severity facts.Severity `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	File     string         `json:"file"`
	Lines    []int          `json:"lines,omitempty"`
	Source   string         `json:"source,omitempty"`
}

// Key identifies a finding for deduplication and ledger purposes.
func (f Finding) Key() string {
	return f.RuleID + "::" + f.File + "::" + linesKey(f.Lines)
}

func linesKey(lines []int) string {
	if len(lines) == 0 {
		return ""
	}
	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = strconv.Itoa(line)
	}
	return strings.Join(parts, ",")
}

// RuleError records a rule whose condition could not be evaluated.
type RuleError struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}

// Coverage summarizes how much of the active rule set a run exercised.
type Coverage struct {
	Active        int     `json:"active"`
	Evaluated     int     `json:"evaluated"`
	Matched       int     `json:"matched"`
	Unevaluated   int     `json:"unevaluated"`
	CoverageRatio float64 `json:"coverage_ratio"`
}

// Result is the output of one evaluation pass.
type Result struct {
	Findings []Finding   `json:"findings"`
	Coverage Coverage    `json:"coverage"`
	Errors   []RuleError `json:"errors,omitempty"`
}

// Evaluator drives the matcher over an active rule subset. Stage scoping
// is a property of the bundle that selected the subset, not of the rule,
// so the evaluator takes the active rules as given.
type Evaluator struct {
	matcher *Matcher
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator with its own matcher.
func NewEvaluator() (*Evaluator, error) {
	m, err := NewMatcher()
	if err != nil {
		return nil, err
	}
	return &Evaluator{matcher: m, logger: slog.Default()}, nil
}

// WithLogger overrides the evaluator's logger.
func (e *Evaluator) WithLogger(logger *slog.Logger) *Evaluator {
	e.logger = logger
	return e
}

// Evaluate runs every active rule over the fact collection. A rule whose
// condition fails to compile or evaluate is recorded as unevaluated and
// the run continues; evaluation never aborts.
func (e *Evaluator) Evaluate(active rules.Set, collection []facts.Fact) Result {
	kindsPresent := make(map[facts.Kind]int, 4)
	for _, f := range collection {
		kindsPresent[f.Kind]++
	}

	result := Result{}
	result.Coverage.Active = len(active)

	for _, rule := range active {
		if !hasCandidateFacts(rule.When, kindsPresent) {
			continue
		}

		compiled, err := e.matcher.Compile(rule)
		if err != nil {
			result.Errors = append(result.Errors, RuleError{RuleID: rule.ID, Reason: err.Error()})
			e.logger.Warn("gate: rule condition rejected", "rule_id", rule.ID, "error", err)
			continue
		}

		sites, err := e.matcher.Match(compiled, collection)
		if err != nil {
			result.Errors = append(result.Errors, RuleError{RuleID: rule.ID, Reason: err.Error()})
			e.logger.Warn("gate: rule evaluation failed", "rule_id", rule.ID, "error", err)
			continue
		}

		result.Coverage.Evaluated++
		if len(sites) == 0 {
			continue
		}

		result.Coverage.Matched++
		for _, site := range sites {
			result.Findings = append(result.Findings, newFinding(rule, site))
		}
	}

	result.Coverage.Unevaluated = result.Coverage.Active - result.Coverage.Evaluated
	if result.Coverage.Active > 0 {
		result.Coverage.CoverageRatio =
			float64(result.Coverage.Evaluated) / float64(result.Coverage.Active)
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		return result.Findings[i].Key() < result.Findings[j].Key()
	})
	return result
}

func newFinding(rule rules.Definition, site MatchSite) Finding {
	code := rule.Then.Code
	if code == "" {
		code = rule.ID
	}
	return Finding{
		RuleID:   rule.ID,
		Severity: rule.Severity,
		Code:     code,
		Message:  rule.Then.Message,
		File:     site.File,
		Lines:    site.Lines,
		Source:   site.Source,
	}
}

func hasCandidateFacts(cond rules.Condition, kindsPresent map[facts.Kind]int) bool {
	if len(cond.AnyOf) > 0 {
		for _, nested := range cond.AnyOf {
			if hasCandidateFacts(nested, kindsPresent) {
				return true
			}
		}
		return false
	}
	return kindsPresent[cond.Kind] > 0
}
