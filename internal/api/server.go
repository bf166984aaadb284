package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/middleware"
	"github.com/clinical-triage-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const shutdownTimeout = 30 * time.Second

// TriageService is the decision-support surface the handlers depend on.
type TriageService interface {
	NormalizePage(page domain.Page) domain.Page
	GetPatient(ctx context.Context, id int64) (*domain.PatientIdentity, error)
	ListPatients(ctx context.Context, page domain.Page) ([]*domain.PatientIdentity, int64, error)
	GetOverview(ctx context.Context, id int64) (*domain.PatientOverviewItem, error)
	GetSummary(ctx context.Context, id int64) (*domain.PatientSummary, error)
	RunPipeline(ctx context.Context, id int64) (*domain.PipelineResult, error)
	EvaluateBundle(bundle *domain.ClinicalBundle) (domain.EvaluationResult, domain.CriticalityStatus)
	ListCritical(ctx context.Context) ([]domain.PatientOverviewItem, error)
	CountCritical(ctx context.Context) (int, error)
}

// RuleCatalog lists the rules applied by the evaluator.
type RuleCatalog interface {
	Rules() []service.RuleInfo
}

// HealthChecker reports record store health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	triage        TriageService
	rules         RuleCatalog
	store         HealthChecker
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(
	configManager domain.ConfigManager,
	triage TriageService,
	rules RuleCatalog,
	store HealthChecker,
	logger *logrus.Logger,
) *Server {
	cfg := configManager.GetConfig()

	if gin.Mode() != gin.TestMode {
		if cfg.Logging.Level == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit(cfg.RateLimit))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		triage:        triage,
		rules:         rules,
		store:         store,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr": addr,
			"tls":  cfg.TLSEnabled,
		}).Info("HTTP server listening")

		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/patients", s.handleListPatients)
		api.GET("/patient/:id", s.handleGetPatient)
		api.GET("/pipeline/:id", s.handlePipeline)
		api.GET("/pipeline/simple/:id", s.handleSummary)
		api.GET("/overview/:id", s.handleOverview)
		api.POST("/evaluate", s.handleEvaluate)
		api.GET("/critical/count", s.handleCriticalCount)
		api.GET("/critical/patients", s.handleCriticalPatients)
		api.GET("/rules", s.handleRules)
	}
}
