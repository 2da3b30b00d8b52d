package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codegate-dev/codegate/pkg/facts"
	"github.com/codegate-dev/codegate/pkg/scanner"
)

// Source identifies facts produced by the generic text matcher.
const Source = "text-scanner"

type compiled struct {
	pattern Pattern
	regexes []*regexp.Regexp
}

// Matcher runs a registry of patterns over the code regions of source
// files and emits heuristic facts.
type Matcher struct {
	patterns []compiled
}

// NewMatcher compiles the registry. A malformed pattern is a programmer
// error in the registry data and fails construction.
func NewMatcher(reg Registry) (*Matcher, error) {
	m := &Matcher{patterns: make([]compiled, 0, len(reg))}
	for _, p := range reg {
		regexes, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("detect: pattern %s: %w", p.RuleID, err)
		}
		m.patterns = append(m.patterns, compiled{pattern: p, regexes: regexes})
	}
	return m, nil
}

func compilePattern(p Pattern) ([]*regexp.Regexp, error) {
	if p.Property == "" {
		return nil, fmt.Errorf("empty property")
	}
	properties := []string{p.Property}
	if p.AsyncVariant {
		properties = append(properties, p.Property+"Sync", p.Property+"Async")
	}

	var regexes []*regexp.Regexp
	for _, prop := range properties {
		var expr string
		if p.Object != "" {
			expr = `\b` + regexp.QuoteMeta(p.Object) + `\s*\.\s*` + regexp.QuoteMeta(prop)
		} else {
			expr = `\b` + regexp.QuoteMeta(prop)
		}
		if p.CallShape {
			expr += `\s*\(`
		} else {
			expr += `\b`
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		regexes = append(regexes, re)
	}
	return regexes, nil
}

// Scan matches every applicable pattern against the code regions of one
// file. Non-production paths produce no facts; at most one fact is
// emitted per rule per file.
func (m *Matcher) Scan(path, content string) []facts.Fact {
	if !IsProductionPath(path) {
		return nil
	}
	platform := facts.InferPlatform(path)
	bridge := IsBridgePath(path)
	lines := scanner.CodeLines(content, scanner.OptionsFor(path))

	var out []facts.Fact
	seen := map[string]struct{}{}
	for _, c := range m.patterns {
		p := c.pattern
		if p.Platform != facts.PlatformGeneric && p.Platform != platform {
			continue
		}
		if p.BridgeExempt && bridge {
			continue
		}
		if _, dup := seen[p.RuleID]; dup {
			continue
		}
		if line, ok := firstMatch(c.regexes, lines); ok {
			seen[p.RuleID] = struct{}{}
			out = append(out, facts.Heuristic(Source, p.RuleID, p.Severity, p.Code,
				fmt.Sprintf("%s (line %d)", p.Message, line), path))
		}
	}
	return out
}

func firstMatch(regexes []*regexp.Regexp, lines []scanner.Line) (int, bool) {
	for _, line := range lines {
		for _, re := range regexes {
			if re.MatchString(line.Text) {
				return line.Number, true
			}
		}
	}
	return 0, false
}

var nonProductionMarkers = []string{".spec.", ".test.", "_test."}

var nonProductionDirs = map[string]struct{}{
	"__tests__": {}, "__mocks__": {}, "test": {}, "tests": {}, "spec": {}, "fixtures": {},
}

// IsProductionPath reports whether a file participates in detection.
// Test and fixture paths are exempt so assertions about banned calls do
// not trip the gate.
func IsProductionPath(path string) bool {
	lower := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	base := lower[strings.LastIndex(lower, "/")+1:]
	for _, marker := range nonProductionMarkers {
		if strings.Contains(base, marker) {
			return false
		}
	}
	for _, segment := range strings.Split(lower, "/") {
		if _, skip := nonProductionDirs[segment]; skip {
			return false
		}
	}
	return true
}

// IsBridgePath reports whether a file sits under an interop bridge
// directory where callback-style concurrency is expected.
func IsBridgePath(path string) bool {
	lower := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	for _, segment := range strings.Split(lower, "/") {
		if segment == "bridge" || segment == "bridges" {
			return true
		}
	}
	return false
}

// CollectFacts scans every FileContent fact through the matcher and
// appends the resulting heuristic facts to the collection.
func (m *Matcher) CollectFacts(collection []facts.Fact) []facts.Fact {
	out := collection
	for _, f := range collection {
		if f.Kind != facts.KindFileContent {
			continue
		}
		out = append(out, m.Scan(f.Path, f.Content)...)
	}
	return out
}
