package domain

// PatientIdentity holds the demographics kept in the patient registry.
type PatientIdentity struct {
	ID        int64  `json:"patient_id" db:"id"`
	MRN       string `json:"mrn" db:"mrn"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Age       int    `json:"age" db:"age"`
	Gender    string `json:"gender" db:"gender"`
	Race      string `json:"race,omitempty" db:"race"`
}

// PatientOverviewItem is the display-ready composite of identity, criticality
// and alerts. Status and Alerts always come from the same evaluation.
type PatientOverviewItem struct {
	Patient PatientIdentity   `json:"patient"`
	Status  CriticalityStatus `json:"status"`
	Alerts  []Alert           `json:"alerts"`
}

// IsCritical reports whether the overview carries real clinical findings.
func (i PatientOverviewItem) IsCritical() bool {
	return i.Status == CRITICAL
}

// EvaluationResult is the outcome of running the rule table over one bundle.
type EvaluationResult struct {
	Alerts []Alert `json:"alerts"`
}

// PipelineResult pairs a patient's bundle with its decision-support output.
type PipelineResult struct {
	Bundle *ClinicalBundle  `json:"-"`
	CDS    EvaluationResult `json:"cds"`
}

// Page describes a window over a listing.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PatientSummary is the clinician-facing digest of one patient's record.
// Alerts and Status come from the same single evaluation as the overview.
type PatientSummary struct {
	Patient     SummaryPatient      `json:"patient"`
	Conditions  []string            `json:"conditions"`
	Medications []SummaryMedication `json:"medications"`
	Vitals      SummaryVitals       `json:"vitals"`
	Alerts      []Alert             `json:"alerts"`
	Status      CriticalityStatus   `json:"status"`
}

// SummaryPatient is the display header of a summary.
type SummaryPatient struct {
	ID     int64  `json:"patient_id"`
	MRN    string `json:"mrn"`
	Name   string `json:"name"`
	DOB    string `json:"dob,omitempty"`
	Gender string `json:"gender,omitempty"`
}

// SummaryMedication is one prescribed medication and how to take it.
type SummaryMedication struct {
	Medication   string `json:"medication"`
	Instructions string `json:"instructions"`
}

// SummaryVitals holds the latest display values; empty means not recorded.
type SummaryVitals struct {
	BloodPressure string `json:"blood_pressure,omitempty"`
	BMI           string `json:"bmi,omitempty"`
}
