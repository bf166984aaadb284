package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
	"github.com/clinical-triage-server/internal/middleware"
)

// maxBundleBytes caps POSTed bundle documents.
const maxBundleBytes = 4 << 20

// statusClientClosedRequest reports a request abandoned by its client.
const statusClientClosedRequest = 499

// PipelineResponse echoes the stored bundle with its decision-support output.
type PipelineResponse struct {
	Bundle json.RawMessage         `json:"bundle"`
	CDS    domain.EvaluationResult `json:"cds"`
}

// EvaluateResponse is the result of evaluating a posted bundle.
type EvaluateResponse struct {
	Alerts []domain.Alert           `json:"alerts"`
	Status domain.CriticalityStatus `json:"status"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status, code, storeStatus := "healthy", http.StatusOK, "ok"
	if err := s.store.Health(c.Request.Context()); err != nil {
		s.logger.WithError(err).Warn("Record store health check failed")
		status, code, storeStatus = "unhealthy", http.StatusServiceUnavailable, err.Error()
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"store":     storeStatus,
	})
}

func (s *Server) handleListPatients(c *gin.Context) {
	page, ok := s.parsePage(c)
	if !ok {
		return
	}

	patients, total, err := s.triage.ListPatients(c.Request.Context(), page)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if patients == nil {
		patients = []*domain.PatientIdentity{}
	}

	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, patients)
}

func (s *Server) handleGetPatient(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	patient, err := s.triage.GetPatient(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (s *Server) handlePipeline(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	result, err := s.triage.RunPipeline(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := PipelineResponse{CDS: result.CDS}
	if result.Bundle != nil && len(result.Bundle.Source) > 0 {
		resp.Bundle = json.RawMessage(result.Bundle.Source)
	} else {
		resp.Bundle = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOverview(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	overview, err := s.triage.GetOverview(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) handleSummary(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	summary, err := s.triage.GetSummary(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleEvaluate(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBundleBytes))
	if err != nil {
		status, message := http.StatusBadRequest, "Bundle document unreadable"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status, message = http.StatusRequestEntityTooLarge, "Bundle document too large"
		}
		c.JSON(status, domain.NewAPIError(
			domain.ErrCodeInvalidInput,
			message,
			err.Error(),
			c.GetString(middleware.CorrelationIDKey),
		))
		return
	}

	bundle, err := fhir.DecodeBundle(body)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, status := s.triage.EvaluateBundle(bundle)
	c.JSON(http.StatusOK, EvaluateResponse{Alerts: result.Alerts, Status: status})
}

func (s *Server) handleCriticalCount(c *gin.Context) {
	count, err := s.triage.CountCritical(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"critical_patient_count": count})
}

func (s *Server) handleCriticalPatients(c *gin.Context) {
	items, err := s.triage.ListCritical(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"critical_patients": items})
}

func (s *Server) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.rules.Rules()})
}

// parseID reads the :id path parameter, writing a 400 when it is not a
// positive integer.
func (s *Server) parseID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.respondValidation(c, domain.NewValidationError("id", "must be a positive integer", raw))
		return 0, false
	}
	return id, true
}

func (s *Server) parsePage(c *gin.Context) (domain.Page, bool) {
	var page domain.Page
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.respondValidation(c, domain.NewValidationError("limit", "must be a non-negative integer", raw))
			return page, false
		}
		page.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			s.respondValidation(c, domain.NewValidationError("offset", "must be a non-negative integer", raw))
			return page, false
		}
		page.Offset = offset
	}
	return s.triage.NormalizePage(page), true
}

func (s *Server) respondValidation(c *gin.Context, verr *domain.ValidationError) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrCodeValidation,
		verr.Error(),
		"",
		c.GetString(middleware.CorrelationIDKey),
	))
}

// respondError maps service errors onto HTTP statuses. Absence is a 404,
// never a 5xx. An expired request deadline is a 504.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var (
		status  int
		code    string
		message string
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, domain.ErrCodeNotFound, "Resource not found"
	case errors.Is(err, domain.ErrInvalidBundle):
		status, code, message = http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid clinical bundle"
	case errors.Is(err, domain.ErrStoreUnavailable):
		status, code, message = http.StatusServiceUnavailable, domain.ErrCodeServiceUnavailable, "Record store unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code, message = http.StatusGatewayTimeout, domain.ErrCodeServiceUnavailable, "Request timed out"
	case errors.Is(err, context.Canceled):
		status, code, message = statusClientClosedRequest, domain.ErrCodeServiceUnavailable, "Request canceled"
	default:
		status, code, message = http.StatusInternalServerError, domain.ErrCodeInternalServer, "Internal server error"
	}

	entry := s.logger.WithFields(logrus.Fields{
		"correlation_id": requestID,
		"path":           c.Request.URL.Path,
		"status":         status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	details := err.Error()
	if status == http.StatusInternalServerError {
		details = ""
	}
	c.JSON(status, domain.NewAPIError(code, message, details, requestID))
}
