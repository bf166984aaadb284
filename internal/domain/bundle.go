package domain

// ResourceKind identifies the variant of a ResourceEntry.
type ResourceKind string

const (
	PatientResource           ResourceKind = "Patient"
	ConditionResource         ResourceKind = "Condition"
	ObservationResource       ResourceKind = "Observation"
	MedicationRequestResource ResourceKind = "MedicationRequest"
)

// ResourceEntry is one clinical resource inside a bundle. The set of
// implementations is closed: Patient, Condition, Observation and
// MedicationRequest.
type ResourceEntry interface {
	Kind() ResourceKind
	sealed()
}

// ClinicalBundle is the structured record for one patient. It is owned by the
// record store and treated as immutable by the decision-support core.
type ClinicalBundle struct {
	PatientID int64           `json:"patient_id,omitempty"`
	MRN       string          `json:"mrn"`
	Entries   []ResourceEntry `json:"-"`

	// Source holds the document the bundle was decoded from, if any.
	Source []byte `json:"-"`
}

// Quantity is a measured value with its unit.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Patient holds the demographic part of a bundle.
type Patient struct {
	GivenNames []string `json:"given,omitempty"`
	FamilyName string   `json:"family,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	BirthDate  string   `json:"birth_date,omitempty"`
}

func (Patient) Kind() ResourceKind { return PatientResource }
func (Patient) sealed()            {}

// Condition is a diagnosis with a free-text label.
type Condition struct {
	Text string `json:"text,omitempty"`
}

func (Condition) Kind() ResourceKind { return ConditionResource }
func (Condition) sealed()            {}

// Label returns the diagnosis label and whether one is present.
func (c Condition) Label() (string, bool) {
	return c.Text, c.Text != ""
}

// ObservationComponent is one named part of a composite observation.
type ObservationComponent struct {
	Code  string    `json:"code"`
	Value *Quantity `json:"value_quantity,omitempty"`
}

// Observation is a single measurement or a composite of named components.
type Observation struct {
	Code       string                 `json:"code"`
	Value      *Quantity              `json:"value_quantity,omitempty"`
	Components []ObservationComponent `json:"components,omitempty"`
}

func (Observation) Kind() ResourceKind { return ObservationResource }
func (Observation) sealed()            {}

// Quantity returns the single value of the observation, if present.
func (o Observation) Quantity() (float64, bool) {
	if o.Value == nil {
		return 0, false
	}
	return o.Value.Value, true
}

// ComponentValue returns the value of the first component whose code equals
// code, if such a component exists and carries a quantity.
func (o Observation) ComponentValue(code string) (float64, bool) {
	for _, c := range o.Components {
		if c.Code != code {
			continue
		}
		if c.Value == nil {
			return 0, false
		}
		return c.Value.Value, true
	}
	return 0, false
}

// ComponentAt returns the value of the component at position i, if present.
func (o Observation) ComponentAt(i int) (float64, bool) {
	if i < 0 || i >= len(o.Components) || o.Components[i].Value == nil {
		return 0, false
	}
	return o.Components[i].Value.Value, true
}

// MedicationRequest is a prescribed medication with its dosage instruction.
type MedicationRequest struct {
	Medication string `json:"medication,omitempty"`
	Dosage     string `json:"dosage,omitempty"`
}

func (MedicationRequest) Kind() ResourceKind { return MedicationRequestResource }
func (MedicationRequest) sealed()            {}
