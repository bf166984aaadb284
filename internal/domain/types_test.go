package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriticalityStatusConstants(t *testing.T) {
	tests := []struct {
		name       string
		value      CriticalityStatus
		expected   string
		determined bool
	}{
		{"Critical", CRITICAL, "critical", true},
		{"Normal", NORMAL, "normal", true},
		{"Unknown", UNKNOWN, "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.value.String())
			assert.True(t, tt.value.IsValid())
			assert.Equal(t, tt.determined, tt.value.IsDetermined())
		})
	}

	assert.False(t, CriticalityStatus("stable").IsValid())
}

func TestIsNoFindings(t *testing.T) {
	assert.True(t, IsNoFindings([]Alert{NoFindingsAlert}))
	assert.False(t, IsNoFindings(nil))
	assert.False(t, IsNoFindings([]Alert{}))
	assert.False(t, IsNoFindings([]Alert{NoFindingsAlert, NoFindingsAlert}))
	assert.False(t, IsNoFindings([]Alert{"Diabetes: monitor blood glucose"}))
}

func TestAlertSeverity(t *testing.T) {
	tests := []struct {
		alert    Alert
		severity string
	}{
		{NoFindingsAlert, SeverityNone},
		{"High LDL cholesterol: consider statin", SeverityCritical},
		{"Hypertension detected: BP 150/95 mmHg", SeverityCritical},
		{"Heart failure: monitor fluid status and daily weights", SeverityCritical},
		{"Low HDL cholesterol: encourage lifestyle modification", SeverityWarning},
		{"Hypertension: reinforce blood pressure control", SeverityWarning},
		{"COPD: ensure inhaler adherence", SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.alert.String(), func(t *testing.T) {
			assert.Equal(t, tt.severity, tt.alert.Severity())
		})
	}
}

func TestObservationAccessors(t *testing.T) {
	obs := Observation{
		Code: "Blood pressure",
		Components: []ObservationComponent{
			{Code: "Systolic blood pressure", Value: &Quantity{Value: 142, Unit: "mmHg"}},
			{Code: "Diastolic blood pressure"},
		},
	}

	v, ok := obs.ComponentAt(0)
	assert.True(t, ok)
	assert.Equal(t, 142.0, v)

	_, ok = obs.ComponentAt(1)
	assert.False(t, ok, "component without quantity is absent")

	_, ok = obs.ComponentAt(2)
	assert.False(t, ok)

	_, ok = obs.Quantity()
	assert.False(t, ok)

	v, ok = obs.ComponentValue("Systolic blood pressure")
	assert.True(t, ok)
	assert.Equal(t, 142.0, v)

	_, ok = obs.ComponentValue("LDL")
	assert.False(t, ok)
}

func TestResourceKinds(t *testing.T) {
	entries := []ResourceEntry{Patient{}, Condition{}, Observation{}, MedicationRequest{}}
	kinds := []ResourceKind{PatientResource, ConditionResource, ObservationResource, MedicationRequestResource}

	for i, e := range entries {
		assert.Equal(t, kinds[i], e.Kind())
	}
}
