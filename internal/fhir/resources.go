package fhir

import (
	"github.com/clinical-triage-server/internal/domain"
)

// Resources is a read-only view over the entries of one clinical bundle.
// A nil bundle yields an empty view.
type Resources struct {
	entries []domain.ResourceEntry
}

// NewResources wraps bundle for typed access.
func NewResources(bundle *domain.ClinicalBundle) Resources {
	if bundle == nil {
		return Resources{}
	}
	return Resources{entries: bundle.Entries}
}

// Entries returns the entries in bundle order.
func (r Resources) Entries() []domain.ResourceEntry {
	return r.entries
}

// Len returns the number of entries.
func (r Resources) Len() int {
	return len(r.entries)
}

// Patient returns the first Patient entry, if present.
func (r Resources) Patient() (domain.Patient, bool) {
	for _, e := range r.entries {
		if p, ok := e.(domain.Patient); ok {
			return p, true
		}
	}
	return domain.Patient{}, false
}

// Conditions returns all Condition entries in bundle order.
func (r Resources) Conditions() []domain.Condition {
	var out []domain.Condition
	for _, e := range r.entries {
		if c, ok := e.(domain.Condition); ok {
			out = append(out, c)
		}
	}
	return out
}

// Observations returns all Observation entries in bundle order.
func (r Resources) Observations() []domain.Observation {
	var out []domain.Observation
	for _, e := range r.entries {
		if o, ok := e.(domain.Observation); ok {
			out = append(out, o)
		}
	}
	return out
}

// ObservationsByCode returns the Observation entries whose code text equals code.
func (r Resources) ObservationsByCode(code string) []domain.Observation {
	var out []domain.Observation
	for _, o := range r.Observations() {
		if o.Code == code {
			out = append(out, o)
		}
	}
	return out
}

// MedicationRequests returns all MedicationRequest entries in bundle order.
func (r Resources) MedicationRequests() []domain.MedicationRequest {
	var out []domain.MedicationRequest
	for _, e := range r.entries {
		if m, ok := e.(domain.MedicationRequest); ok {
			out = append(out, m)
		}
	}
	return out
}
