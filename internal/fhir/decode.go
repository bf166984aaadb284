// Package fhir turns FHIR R4 bundle documents into the typed clinical record
// model and provides read-only, optional-aware access to its resources.
package fhir

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/clinical-triage-server/internal/domain"
)

type rawBundle struct {
	ResourceType string                `json:"resourceType"`
	Entry        lenientList[rawEntry] `json:"entry"`
}

type rawEntry struct {
	Resource json.RawMessage `json:"resource"`
}

// Every field below decodes leniently: a value of the wrong JSON shape is
// treated as absent, so one bad field never discards its resource.
type rawResource struct {
	ResourceType lenient[string] `json:"resourceType"`

	// Patient
	Identifier lenientList[rawIdentifier] `json:"identifier"`
	Name       lenientList[rawHumanName]  `json:"name"`
	Gender     lenient[string]            `json:"gender"`
	BirthDate  lenient[string]            `json:"birthDate"`

	// Condition, Observation
	Code          lenient[rawCodeableConcept] `json:"code"`
	ValueQuantity lenient[rawQuantity]        `json:"valueQuantity"`
	Component     lenientList[rawComponent]   `json:"component"`

	// MedicationRequest
	MedicationCodeableConcept lenient[rawCodeableConcept] `json:"medicationCodeableConcept"`
	DosageInstruction         lenientList[rawDosage]      `json:"dosageInstruction"`
}

type rawIdentifier struct {
	System lenient[string] `json:"system"`
	Value  lenient[string] `json:"value"`
}

type rawHumanName struct {
	Given  lenientList[lenient[string]] `json:"given"`
	Family lenient[string]              `json:"family"`
}

type rawCoding struct {
	System  lenient[string] `json:"system"`
	Code    lenient[string] `json:"code"`
	Display lenient[string] `json:"display"`
}

type rawCodeableConcept struct {
	Text   lenient[string]        `json:"text"`
	Coding lenientList[rawCoding] `json:"coding"`
}

type rawQuantity struct {
	Value lenient[float64] `json:"value"`
	Unit  lenient[string]  `json:"unit"`
}

type rawComponent struct {
	Code          lenient[rawCodeableConcept] `json:"code"`
	ValueQuantity lenient[rawQuantity]        `json:"valueQuantity"`
}

type rawDosage struct {
	Text lenient[string] `json:"text"`
}

// lenient holds an optional JSON value. Null and values that do not decode
// into T leave it absent instead of failing the enclosing document.
type lenient[T any] struct {
	value T
	ok    bool
}

func (l *lenient[T]) UnmarshalJSON(data []byte) error {
	*l = lenient[T]{}
	if string(data) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*l = lenient[T]{value: v, ok: true}
	return nil
}

// get returns the value, or the zero value when absent.
func (l lenient[T]) get() T {
	return l.value
}

// lenientList holds a JSON array decoded element by element. Elements that do
// not decode keep their position as zero values, so positional readers such as
// blood pressure components stay aligned. A non-array decodes as empty.
type lenientList[T any] struct {
	items []T
}

func (l *lenientList[T]) UnmarshalJSON(data []byte) error {
	l.items = nil
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil
	}
	l.items = make([]T, len(elems))
	for i, elem := range elems {
		if err := json.Unmarshal(elem, &l.items[i]); err != nil {
			var zero T
			l.items[i] = zero
		}
	}
	return nil
}

// DecodeBundle parses a FHIR bundle document. Entries of unsupported resource
// types, and entries whose resource is not a JSON object, are left out.
// Missing or wrongly typed nested fields become absent values on the typed
// resources, so only the rules reading them are skipped.
func DecodeBundle(data []byte) (*domain.ClinicalBundle, error) {
	var doc rawBundle
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBundle, err)
	}
	if doc.ResourceType != "Bundle" {
		return nil, fmt.Errorf("%w: resourceType %q", domain.ErrInvalidBundle, doc.ResourceType)
	}

	bundle := &domain.ClinicalBundle{
		Entries: make([]domain.ResourceEntry, 0, len(doc.Entry.items)),
		Source:  data,
	}

	for _, e := range doc.Entry.items {
		if len(e.Resource) == 0 {
			continue
		}
		var res rawResource
		if err := json.Unmarshal(e.Resource, &res); err != nil {
			continue
		}

		entry, ok := res.toEntry()
		if !ok {
			continue
		}
		if bundle.MRN == "" && entry.Kind() == domain.PatientResource && len(res.Identifier.items) > 0 {
			bundle.MRN = res.Identifier.items[0].Value.get()
		}
		bundle.Entries = append(bundle.Entries, entry)
	}

	return bundle, nil
}

func (r *rawResource) toEntry() (domain.ResourceEntry, bool) {
	switch domain.ResourceKind(r.ResourceType.get()) {
	case domain.PatientResource:
		p := domain.Patient{Gender: r.Gender.get(), BirthDate: r.BirthDate.get()}
		if len(r.Name.items) > 0 {
			name := r.Name.items[0]
			for _, given := range name.Given.items {
				if given.ok && given.value != "" {
					p.GivenNames = append(p.GivenNames, given.value)
				}
			}
			p.FamilyName = name.Family.get()
		}
		return p, true

	case domain.ConditionResource:
		return domain.Condition{Text: r.Code.value.label()}, true

	case domain.ObservationResource:
		o := domain.Observation{
			Code:  r.Code.value.label(),
			Value: toQuantity(r.ValueQuantity),
		}
		for _, c := range r.Component.items {
			o.Components = append(o.Components, domain.ObservationComponent{
				Code:  c.Code.value.label(),
				Value: toQuantity(c.ValueQuantity),
			})
		}
		return o, true

	case domain.MedicationRequestResource:
		m := domain.MedicationRequest{Medication: r.MedicationCodeableConcept.value.label()}
		if len(r.DosageInstruction.items) > 0 {
			m.Dosage = r.DosageInstruction.items[0].Text.get()
		}
		return m, true

	default:
		return nil, false
	}
}

// label prefers the free-text label and falls back to the first coding display.
func (c rawCodeableConcept) label() string {
	if text := c.Text.get(); text != "" {
		return text
	}
	for _, coding := range c.Coding.items {
		if display := coding.Display.get(); display != "" {
			return display
		}
	}
	return ""
}

// toQuantity yields nil unless a numeric value is present.
func toQuantity(q lenient[rawQuantity]) *domain.Quantity {
	if !q.ok || !q.value.Value.ok {
		return nil
	}
	return &domain.Quantity{Value: q.value.Value.value, Unit: q.value.Unit.get()}
}
