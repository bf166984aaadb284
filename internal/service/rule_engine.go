package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
)

// Observation code texts the rule table matches on.
const (
	CodeLipidPanel    = "Lipid panel"
	CodeBloodPressure = "Blood pressure"
	CodeBodyMassIndex = "Body mass index"
	CodeHbA1c         = "HbA1c"
	CodeCreatinine    = "Creatinine"
	ComponentLDL      = "LDL"
	ComponentHDL      = "HDL"
)

// Rule thresholds.
const (
	LDLHighThreshold        = 160.0
	HDLLowThreshold         = 40.0
	SystolicHighThreshold   = 140.0
	DiastolicHighThreshold  = 90.0
	BMIObesityThreshold     = 30.0
	BMIUnderweightThreshold = 18.5
	HbA1cDiabetesThreshold  = 6.5
	CreatinineHighThreshold = 1.5
)

// Evaluator produces the ordered alert sequence for a bundle.
type Evaluator interface {
	Evaluate(bundle *domain.ClinicalBundle) []domain.Alert
}

type ruleOutcome int

const (
	ruleNotMet ruleOutcome = iota
	ruleFired
	ruleSkipped // the entry lacks a field the rule needs
)

// ClinicalRule is one row of the clinical rule table.
type ClinicalRule struct {
	Code      string
	Name      string
	Resource  domain.ResourceKind
	Evaluator func(entry domain.ResourceEntry) (domain.Alert, ruleOutcome)
}

// RuleInfo describes a rule for listings.
type RuleInfo struct {
	Code     string              `json:"code"`
	Name     string              `json:"name"`
	Resource domain.ResourceKind `json:"resource"`
}

// ClinicalRuleEngine applies the fixed clinical rule table to bundles.
// It holds no mutable state and is safe for concurrent use.
type ClinicalRuleEngine struct {
	logger *logrus.Logger
	rules  []*ClinicalRule
}

// NewClinicalRuleEngine creates a rule engine with the full rule table.
func NewClinicalRuleEngine(logger *logrus.Logger) *ClinicalRuleEngine {
	engine := &ClinicalRuleEngine{
		logger: logger,
	}

	engine.initializeRules()

	return engine
}

// Evaluate walks the bundle entries in order and appends one alert per firing
// rule. When nothing fires the result is the single no-findings sentinel.
func (e *ClinicalRuleEngine) Evaluate(bundle *domain.ClinicalBundle) []domain.Alert {
	resources := fhir.NewResources(bundle)
	alerts := make([]domain.Alert, 0)
	skipped := 0

	for i, entry := range resources.Entries() {
		for _, rule := range e.rules {
			if rule.Resource != entry.Kind() {
				continue
			}

			alert, outcome := rule.Evaluator(entry)
			switch outcome {
			case ruleFired:
				alerts = append(alerts, alert)
			case ruleSkipped:
				skipped++
				e.logger.WithFields(logrus.Fields{
					"rule":        rule.Code,
					"entry_index": i,
				}).Debug("Skipped rule for entry missing required fields")
			}
		}
	}

	e.logger.WithFields(logrus.Fields{
		"entries":       resources.Len(),
		"alerts":        len(alerts),
		"skipped_rules": skipped,
	}).Debug("Completed clinical rule evaluation")

	if len(alerts) == 0 {
		return []domain.Alert{domain.NoFindingsAlert}
	}
	return alerts
}

// Rules lists the rule table in evaluation order.
func (e *ClinicalRuleEngine) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, RuleInfo{Code: r.Code, Name: r.Name, Resource: r.Resource})
	}
	return out
}

// initializeRules sets up the rule table. Order matters: it is the order in
// which alerts for the same entry are appended.
func (e *ClinicalRuleEngine) initializeRules() {
	// Laboratory and vital-sign thresholds
	e.addRule("LDL_HIGH", "LDL cholesterol at or above 160 mg/dL", domain.ObservationResource, evaluateHighLDL)
	e.addRule("HDL_LOW", "HDL cholesterol below 40 mg/dL", domain.ObservationResource, evaluateLowHDL)
	e.addRule("BP_HIGH", "Systolic at or above 140 or diastolic at or above 90 mmHg", domain.ObservationResource, evaluateBloodPressure)
	e.addRule("BMI_OBESITY", "Body mass index at or above 30", domain.ObservationResource, evaluateObesity)
	e.addRule("BMI_UNDERWEIGHT", "Body mass index below 18.5", domain.ObservationResource, evaluateUnderweight)
	e.addRule("HBA1C_HIGH", "HbA1c at or above 6.5%", domain.ObservationResource, evaluateHbA1c)
	e.addRule("CREATININE_HIGH", "Creatinine at or above 1.5 mg/dL", domain.ObservationResource, evaluateCreatinine)

	// Condition label matching
	e.addRule("COND_HEART_FAILURE", "Condition mentions heart failure", domain.ConditionResource,
		conditionRule("heart failure", "Heart failure: monitor fluid status and daily weights"))
	e.addRule("COND_COPD", "Condition mentions COPD", domain.ConditionResource,
		conditionRule("copd", "COPD: ensure inhaler adherence"))
	e.addRule("COND_HYPERTENSION", "Condition mentions hypertension", domain.ConditionResource,
		conditionRule("hypertension", "Hypertension: reinforce blood pressure control"))
	e.addRule("COND_DIABETES", "Condition mentions diabetes", domain.ConditionResource,
		conditionRule("diabetes", "Diabetes: monitor blood glucose"))

	e.logger.WithField("rule_count", len(e.rules)).Debug("Initialized clinical rules")
}

// addRule is a helper to add a rule to the engine
func (e *ClinicalRuleEngine) addRule(code, name string, resource domain.ResourceKind, evaluator func(domain.ResourceEntry) (domain.Alert, ruleOutcome)) {
	e.rules = append(e.rules, &ClinicalRule{
		Code:      code,
		Name:      name,
		Resource:  resource,
		Evaluator: evaluator,
	})
}

// observationWithCode narrows entry to an Observation with the given code text.
func observationWithCode(entry domain.ResourceEntry, code string) (domain.Observation, bool) {
	obs, ok := entry.(domain.Observation)
	if !ok || obs.Code != code {
		return domain.Observation{}, false
	}
	return obs, true
}

func evaluateHighLDL(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	obs, ok := observationWithCode(entry, CodeLipidPanel)
	if !ok {
		return "", ruleNotMet
	}
	ldl, ok := obs.ComponentValue(ComponentLDL)
	if !ok {
		return "", ruleSkipped
	}
	if ldl >= LDLHighThreshold {
		return "High LDL cholesterol: consider statin", ruleFired
	}
	return "", ruleNotMet
}

func evaluateLowHDL(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	obs, ok := observationWithCode(entry, CodeLipidPanel)
	if !ok {
		return "", ruleNotMet
	}
	hdl, ok := obs.ComponentValue(ComponentHDL)
	if !ok {
		return "", ruleSkipped
	}
	if hdl < HDLLowThreshold {
		return "Low HDL cholesterol: encourage lifestyle modification", ruleFired
	}
	return "", ruleNotMet
}

// evaluateBloodPressure reads systolic and diastolic positionally from the
// first two components.
func evaluateBloodPressure(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	obs, ok := observationWithCode(entry, CodeBloodPressure)
	if !ok {
		return "", ruleNotMet
	}
	systolic, ok := obs.ComponentAt(0)
	if !ok {
		return "", ruleSkipped
	}
	diastolic, ok := obs.ComponentAt(1)
	if !ok {
		return "", ruleSkipped
	}
	if systolic >= SystolicHighThreshold || diastolic >= DiastolicHighThreshold {
		return domain.Alert(fmt.Sprintf("Hypertension detected: BP %s/%s mmHg",
			formatValue(systolic), formatValue(diastolic))), ruleFired
	}
	return "", ruleNotMet
}

func evaluateObesity(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	return singleValueRule(entry, CodeBodyMassIndex, func(bmi float64) (domain.Alert, bool) {
		if bmi >= BMIObesityThreshold {
			return domain.Alert(fmt.Sprintf("Obesity: BMI %s, recommend weight management", formatValue(bmi))), true
		}
		return "", false
	})
}

func evaluateUnderweight(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	return singleValueRule(entry, CodeBodyMassIndex, func(bmi float64) (domain.Alert, bool) {
		if bmi < BMIUnderweightThreshold {
			return domain.Alert(fmt.Sprintf("Underweight: BMI %s, assess nutritional status", formatValue(bmi))), true
		}
		return "", false
	})
}

func evaluateHbA1c(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	return singleValueRule(entry, CodeHbA1c, func(v float64) (domain.Alert, bool) {
		if v >= HbA1cDiabetesThreshold {
			return domain.Alert(fmt.Sprintf("Diabetes: HbA1c %s%%, review glycemic control", formatValue(v))), true
		}
		return "", false
	})
}

func evaluateCreatinine(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	return singleValueRule(entry, CodeCreatinine, func(v float64) (domain.Alert, bool) {
		if v >= CreatinineHighThreshold {
			return domain.Alert(fmt.Sprintf("Elevated creatinine: %s mg/dL, assess renal function", formatValue(v))), true
		}
		return "", false
	})
}

func singleValueRule(entry domain.ResourceEntry, code string, check func(float64) (domain.Alert, bool)) (domain.Alert, ruleOutcome) {
	obs, ok := observationWithCode(entry, code)
	if !ok {
		return "", ruleNotMet
	}
	v, ok := obs.Quantity()
	if !ok {
		return "", ruleSkipped
	}
	if alert, fired := check(v); fired {
		return alert, ruleFired
	}
	return "", ruleNotMet
}

// conditionRule matches needle as a case-insensitive substring of the label.
func conditionRule(needle string, message domain.Alert) func(domain.ResourceEntry) (domain.Alert, ruleOutcome) {
	return func(entry domain.ResourceEntry) (domain.Alert, ruleOutcome) {
		cond, ok := entry.(domain.Condition)
		if !ok {
			return "", ruleNotMet
		}
		label, ok := cond.Label()
		if !ok {
			return "", ruleSkipped
		}
		if strings.Contains(strings.ToLower(label), needle) {
			return message, ruleFired
		}
		return "", ruleNotMet
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
