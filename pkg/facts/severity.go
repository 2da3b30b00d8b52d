package facts

// Severity classifies a finding. The order is total:
// CRITICAL > ERROR > WARN > INFO.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     10,
	SeverityWarn:     20,
	SeverityError:    30,
	SeverityCritical: 40,
}

// ValidSeverity reports whether s is one of the four known levels.
func ValidSeverity(s Severity) bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the numeric position of s in the severity order.
// Unknown severities rank below INFO.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at least as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// Blocking reports whether s is a blocking severity (ERROR or CRITICAL).
func (s Severity) Blocking() bool {
	return s.AtLeast(SeverityError)
}

// MaxSeverity returns the highest severity among the given values,
// or the empty string when the slice is empty.
func MaxSeverity(values []Severity) Severity {
	var max Severity
	for _, v := range values {
		if v.Rank() > max.Rank() {
			max = v
		}
	}
	return max
}
