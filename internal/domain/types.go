// Package domain contains the core entities of the clinical triage server:
// the clinical record model, alerts, criticality statuses and the patient
// overview that the decision-support core derives from them.
package domain

import (
	"strings"
)

// CriticalityStatus is the derived triage classification of a patient.
// Only Critical and Normal are produced by the classifier; Unknown marks
// a patient for whom no clinical bundle exists.
type CriticalityStatus string

const (
	CRITICAL CriticalityStatus = "critical"
	NORMAL   CriticalityStatus = "normal"
	UNKNOWN  CriticalityStatus = "unknown"
)

// IsValid reports whether the status is one of the known values.
func (s CriticalityStatus) IsValid() bool {
	switch s {
	case CRITICAL, NORMAL, UNKNOWN:
		return true
	default:
		return false
	}
}

// IsDetermined reports whether the status was computed from clinical data.
func (s CriticalityStatus) IsDetermined() bool {
	return s == CRITICAL || s == NORMAL
}

// String returns the string representation of the status.
func (s CriticalityStatus) String() string {
	return string(s)
}

// LogFields returns structured logging fields for audit trails.
func (s CriticalityStatus) LogFields() map[string]any {
	return map[string]any{
		"status":     string(s),
		"is_valid":   s.IsValid(),
		"determined": s.IsDetermined(),
	}
}

// Alert is a rule-triggered advisory message.
type Alert string

// NoFindingsAlert is the sentinel alert meaning "rules evaluated, nothing fired".
// It is only ever returned as the single element of an alert sequence.
const NoFindingsAlert Alert = "No critical alerts"

// Severity levels used when displaying alerts.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
	SeverityNone     = "none"
)

// String returns the alert text.
func (a Alert) String() string {
	return string(a)
}

// Severity returns a display hint derived from the alert text. It is
// presentation only and never feeds the criticality classification.
func (a Alert) Severity() string {
	t := strings.ToLower(string(a))

	switch {
	case a == NoFindingsAlert:
		return SeverityNone
	case strings.Contains(t, "heart failure"),
		strings.Contains(t, "hypertension detected"),
		strings.Contains(t, "elevated creatinine"),
		strings.Contains(t, "high ldl"):
		return SeverityCritical
	case strings.Contains(t, "obesity"),
		strings.Contains(t, "underweight"),
		strings.Contains(t, "low hdl"),
		strings.Contains(t, "hypertension:"),
		strings.Contains(t, "diabetes"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// IsNoFindings reports whether alerts is exactly the one-element sentinel sequence.
func IsNoFindings(alerts []Alert) bool {
	return len(alerts) == 1 && alerts[0] == NoFindingsAlert
}
