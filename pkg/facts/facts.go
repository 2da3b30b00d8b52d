// Package facts defines the atomic observations a gate evaluation consumes:
// changed files, file contents, dependency edges and heuristic detector hits.
// Facts are produced once per run and are read-only to the policy core.
package facts

// Kind discriminates the Fact union.
type Kind string

const (
	KindFileChange  Kind = "FileChange"
	KindFileContent Kind = "FileContent"
	KindDependency  Kind = "Dependency"
	KindHeuristic   Kind = "Heuristic"
)

// ChangeType describes how a file changed in the working tree.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// Fact is a tagged union over the four observation variants. Only the
// fields belonging to the active Kind are populated; Source records the
// collector that produced the observation (git, repo, detector id, ...).
type Fact struct {
	Kind   Kind   `json:"kind"`
	Source string `json:"source"`

	// FileChange / FileContent
	Path       string     `json:"path,omitempty"`
	ChangeType ChangeType `json:"changeType,omitempty"`
	Content    string     `json:"content,omitempty"`

	// Dependency
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Heuristic
	RuleID   string   `json:"ruleId,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
	FilePath string   `json:"filePath,omitempty"`
}

// FileChange builds a FileChange fact.
func FileChange(source, path string, change ChangeType) Fact {
	return Fact{Kind: KindFileChange, Source: source, Path: path, ChangeType: change}
}

// FileContent builds a FileContent fact.
func FileContent(source, path, content string) Fact {
	return Fact{Kind: KindFileContent, Source: source, Path: path, Content: content}
}

// Dependency builds a Dependency fact.
func Dependency(source, from, to string) Fact {
	return Fact{Kind: KindDependency, Source: source, From: from, To: to}
}

// Heuristic builds a Heuristic fact.
func Heuristic(source, ruleID string, severity Severity, code, message, filePath string) Fact {
	return Fact{
		Kind:     KindHeuristic,
		Source:   source,
		RuleID:   ruleID,
		Severity: severity,
		Code:     code,
		Message:  message,
		FilePath: filePath,
	}
}

// Location returns the path-bearing field of the fact: Path for file
// variants, FilePath for heuristics, From for dependency edges.
func (f Fact) Location() string {
	switch f.Kind {
	case KindHeuristic:
		return f.FilePath
	case KindDependency:
		return f.From
	default:
		return f.Path
	}
}
