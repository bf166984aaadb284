package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
)

// GetSummary builds the summary view for one patient. Like the overview, a
// patient without a clinical bundle gets an unknown status and empty sections.
func (s *TriageService) GetSummary(ctx context.Context, id int64) (*domain.PatientSummary, error) {
	patient, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	bundle, err := s.lookupBundle(ctx, patient.MRN)
	if err != nil {
		return nil, err
	}

	item := s.assembler.Assemble(*patient, bundle)
	summary := Summarize(*patient, bundle, item)

	s.logger.WithFields(logrus.Fields{
		"patient_id":  patient.ID,
		"status":      summary.Status,
		"conditions":  len(summary.Conditions),
		"medications": len(summary.Medications),
	}).Debug("Built patient summary")

	return &summary, nil
}

// Summarize lays out bundle for display, taking alerts and status from item
// so the summary never re-evaluates the rule table.
func Summarize(identity domain.PatientIdentity, bundle *domain.ClinicalBundle, item domain.PatientOverviewItem) domain.PatientSummary {
	resources := fhir.NewResources(bundle)

	summary := domain.PatientSummary{
		Patient: domain.SummaryPatient{
			ID:     identity.ID,
			MRN:    identity.MRN,
			Name:   strings.TrimSpace(identity.FirstName + " " + identity.LastName),
			Gender: identity.Gender,
		},
		Conditions:  []string{},
		Medications: []domain.SummaryMedication{},
		Alerts:      item.Alerts,
		Status:      item.Status,
	}

	if p, ok := resources.Patient(); ok {
		parts := append([]string{}, p.GivenNames...)
		parts = append(parts, p.FamilyName)
		if name := strings.TrimSpace(strings.Join(parts, " ")); name != "" {
			summary.Patient.Name = name
		}
		if p.Gender != "" {
			summary.Patient.Gender = p.Gender
		}
		summary.Patient.DOB = p.BirthDate
	}

	for _, c := range resources.Conditions() {
		if label, ok := c.Label(); ok {
			summary.Conditions = append(summary.Conditions, label)
		}
	}

	for _, m := range resources.MedicationRequests() {
		if m.Medication == "" {
			continue
		}
		summary.Medications = append(summary.Medications, domain.SummaryMedication{
			Medication:   m.Medication,
			Instructions: m.Dosage,
		})
	}

	summary.Vitals.BloodPressure = bloodPressureReading(resources.ObservationsByCode(CodeBloodPressure))
	for _, o := range resources.ObservationsByCode(CodeBodyMassIndex) {
		if bmi, ok := o.Quantity(); ok {
			summary.Vitals.BMI = formatValue(bmi)
			break
		}
	}

	return summary
}

// bloodPressureReading formats the first complete reading as "148/92 mmHg".
func bloodPressureReading(observations []domain.Observation) string {
	for _, o := range observations {
		systolic, ok := o.ComponentAt(0)
		if !ok {
			continue
		}
		diastolic, ok := o.ComponentAt(1)
		if !ok {
			continue
		}
		reading := formatValue(systolic) + "/" + formatValue(diastolic)
		if unit := o.Components[0].Value.Unit; unit != "" {
			reading += " " + unit
		}
		return reading
	}
	return ""
}
