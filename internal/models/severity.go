package models

import "strings"

// Severity is the five-level classification shared by the diff stages,
// the reasoner, and the report.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering value of the severity, none=0 .. critical=4
func (s Severity) Rank() int {
	return severityRank[s]
}

// RiskValue maps the severity onto the 0-100 risk scale
func (s Severity) RiskValue() int {
	return s.Rank() * 25
}

// MaxSeverity returns the highest-ranked of the given severities,
// or none when the list is empty.
func MaxSeverity(severities ...Severity) Severity {
	max := SeverityNone
	for _, s := range severities {
		if s.Rank() > max.Rank() {
			max = s
		}
	}
	return max
}

// ParseSeverity normalizes a free-form severity string, as returned by an
// LLM, onto the known levels. Unknown values fall back to medium so a
// misbehaving reasoner cannot silently downgrade a finding to none.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityNone:
		return SeverityNone
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
