package fhir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-triage-server/internal/domain"
)

func TestResources_TypedFilters(t *testing.T) {
	bundle, err := DecodeBundle(loadFixture(t, "bundle_mrn1001.json"))
	require.NoError(t, err)

	res := NewResources(bundle)
	assert.Equal(t, 7, res.Len())

	patient, ok := res.Patient()
	require.True(t, ok)
	assert.Equal(t, "Doe", patient.FamilyName)

	conditions := res.Conditions()
	require.Len(t, conditions, 2)
	assert.Equal(t, "Type 2 Diabetes Mellitus", conditions[0].Text)
	assert.Equal(t, "Essential Hypertension", conditions[1].Text)

	assert.Len(t, res.Observations(), 3)
	assert.Len(t, res.ObservationsByCode("Blood pressure"), 1)
	assert.Empty(t, res.ObservationsByCode("blood pressure"), "code text match is exact")
	assert.Empty(t, res.ObservationsByCode("Creatinine"))

	meds := res.MedicationRequests()
	require.Len(t, meds, 1)
	assert.Equal(t, "Metformin 500 mg", meds[0].Medication)
}

func TestResources_NilBundle(t *testing.T) {
	res := NewResources(nil)

	assert.Equal(t, 0, res.Len())
	assert.Empty(t, res.Entries())
	assert.Empty(t, res.Conditions())
	assert.Empty(t, res.Observations())
	assert.Empty(t, res.MedicationRequests())

	_, ok := res.Patient()
	assert.False(t, ok)
}

func TestResources_PreservesOrder(t *testing.T) {
	bundle := &domain.ClinicalBundle{
		Entries: []domain.ResourceEntry{
			domain.Condition{Text: "COPD"},
			domain.Observation{Code: "HbA1c"},
			domain.Condition{Text: "Heart failure"},
		},
	}

	conditions := NewResources(bundle).Conditions()
	require.Len(t, conditions, 2)
	assert.Equal(t, "COPD", conditions[0].Text)
	assert.Equal(t, "Heart failure", conditions[1].Text)
}
