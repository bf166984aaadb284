package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
)

// EvaluateBundleParams defines parameters for the evaluate_bundle tool
type EvaluateBundleParams struct {
	Bundle string `json:"bundle" jsonschema:"FHIR R4 Bundle document as a JSON string"`
}

// EvaluateBundleResult defines the result structure for the evaluate_bundle tool
type EvaluateBundleResult struct {
	Status domain.CriticalityStatus `json:"status"`
	Alerts []domain.Alert           `json:"alerts"`
}

// PatientOverviewParams defines parameters for the get_patient_overview tool
type PatientOverviewParams struct {
	PatientID int64 `json:"patient_id" jsonschema:"registry id of the patient"`
}

// ListCriticalParams defines parameters for the list_critical_patients tool
type ListCriticalParams struct{}

// ListCriticalResult defines the result structure for the list_critical_patients tool
type ListCriticalResult struct {
	Count            int                          `json:"critical_patient_count"`
	CriticalPatients []domain.PatientOverviewItem `json:"critical_patients"`
}

func (s *Server) handleEvaluateBundle(ctx context.Context, req *mcp.CallToolRequest, params EvaluateBundleParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "evaluate_bundle").Info("Tool invoked")

	if strings.TrimSpace(params.Bundle) == "" {
		return createErrorResult("Missing required parameter", errors.New("bundle is required")), nil, nil
	}

	bundle, err := fhir.DecodeBundle([]byte(params.Bundle))
	if err != nil {
		return createErrorResult("Invalid bundle", err), nil, nil
	}

	evaluation, status := s.triage.EvaluateBundle(bundle)
	result := EvaluateBundleResult{Status: status, Alerts: evaluation.Alerts}

	summary := fmt.Sprintf("Status %s with %d alert(s)", status, len(result.Alerts)) + alertLines(result.Alerts)
	if status == domain.NORMAL {
		summary = fmt.Sprintf("Status %s: %s", status, domain.NoFindingsAlert)
	}
	return textResult(summary, result), result, nil
}

func (s *Server) handleGetPatientOverview(ctx context.Context, req *mcp.CallToolRequest, params PatientOverviewParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":       "get_patient_overview",
		"patient_id": params.PatientID,
	}).Info("Tool invoked")

	if params.PatientID <= 0 {
		return createErrorResult("Invalid parameter", errors.New("patient_id must be a positive integer")), nil, nil
	}

	overview, err := s.triage.GetOverview(ctx, params.PatientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return createErrorResult("Patient not found", err), nil, nil
		}
		return nil, nil, fmt.Errorf("get_patient_overview failed: %w", err)
	}

	summary := fmt.Sprintf("Patient %d (%s %s): %s, %d alert(s)",
		overview.Patient.ID, overview.Patient.FirstName, overview.Patient.LastName,
		overview.Status, len(overview.Alerts))
	summary += alertLines(overview.Alerts)
	return textResult(summary, overview), overview, nil
}

func (s *Server) handleListCriticalPatients(ctx context.Context, req *mcp.CallToolRequest, params ListCriticalParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_critical_patients").Info("Tool invoked")

	items, err := s.triage.ListCritical(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list_critical_patients failed: %w", err)
	}

	result := ListCriticalResult{Count: len(items), CriticalPatients: items}
	return textResult(fmt.Sprintf("%d critical patient(s)", result.Count), result), result, nil
}

// alertLines lists alerts one per line with their display severity.
func alertLines(alerts []domain.Alert) string {
	var b strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n- [%s] %s", a.Severity(), a)
	}
	return b.String()
}

// textResult renders a one-line summary followed by the JSON payload.
func textResult(summary string, payload any) *mcp.CallToolResult {
	text := summary
	if data, err := json.MarshalIndent(payload, "", "  "); err == nil {
		text += "\n" + string(data)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
