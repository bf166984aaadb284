package service

import (
	"github.com/clinical-triage-server/internal/domain"
)

// Classify maps an alert sequence to a criticality status. A patient is
// normal only when the sequence is exactly the no-findings sentinel; any
// other sequence, including one that mixes real alerts with the sentinel
// text, is critical.
func Classify(alerts []domain.Alert) domain.CriticalityStatus {
	if domain.IsNoFindings(alerts) {
		return domain.NORMAL
	}
	return domain.CRITICAL
}

// OverviewAssembler builds the per-patient overview item.
type OverviewAssembler struct {
	evaluator Evaluator
}

// NewOverviewAssembler creates an assembler backed by evaluator.
func NewOverviewAssembler(evaluator Evaluator) *OverviewAssembler {
	return &OverviewAssembler{evaluator: evaluator}
}

// Assemble combines identity with the evaluation of bundle. A nil bundle means
// no clinical record exists: the status is unknown and the alerts are an
// empty, non-nil sequence. Otherwise the bundle is evaluated exactly once and
// the same alerts back both the status and the returned list.
func (a *OverviewAssembler) Assemble(identity domain.PatientIdentity, bundle *domain.ClinicalBundle) domain.PatientOverviewItem {
	if bundle == nil {
		return domain.PatientOverviewItem{
			Patient: identity,
			Status:  domain.UNKNOWN,
			Alerts:  []domain.Alert{},
		}
	}

	alerts := a.evaluator.Evaluate(bundle)
	return domain.PatientOverviewItem{
		Patient: identity,
		Status:  Classify(alerts),
		Alerts:  alerts,
	}
}
