// Package mcp exposes the triage core as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
)

const (
	serverName    = "clinical-triage-server"
	serverVersion = "v1.0.0"
)

// TriageService is the part of the triage core reachable from tools.
type TriageService interface {
	GetOverview(ctx context.Context, id int64) (*domain.PatientOverviewItem, error)
	EvaluateBundle(bundle *domain.ClinicalBundle) (domain.EvaluationResult, domain.CriticalityStatus)
	ListCritical(ctx context.Context) ([]domain.PatientOverviewItem, error)
}

// Server represents the clinical triage MCP server
type Server struct {
	mcpServer *mcp.Server
	triage    TriageService
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every tool registered.
func NewServer(triage TriageService, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}

	server := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		triage:    triage,
		logger:    logger,
	}
	server.registerTools()

	return server
}

// Run serves MCP over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithField("transport", "stdio").Info("Starting clinical triage MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "evaluate_bundle",
		Description: "Run the clinical rule table over a FHIR R4 Bundle and classify the result as critical or normal.",
	}, s.handleEvaluateBundle)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_patient_overview",
		Description: "Return a patient's identity, criticality status and alerts. Status is unknown when no clinical record exists.",
	}, s.handleGetPatientOverview)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_critical_patients",
		Description: "Scan every registered patient and list those with at least one clinical alert.",
	}, s.handleListCriticalPatients)

	s.logger.WithField("tool_count", 3).Debug("Registered MCP tools")
}
