package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
)

const (
	defaultMaxConcurrency = 8
	defaultPageSize       = 50
	defaultMaxPageSize    = 500
)

// TriageService orchestrates lookups, rule evaluation and classification.
type TriageService struct {
	logger    *logrus.Logger
	patients  domain.PatientRepository
	bundles   domain.BundleRepository
	evaluator Evaluator
	assembler *OverviewAssembler
	config    domain.TriageConfig
	scanSem   chan struct{}
}

// NewTriageService creates a new triage service
func NewTriageService(
	logger *logrus.Logger,
	patients domain.PatientRepository,
	bundles domain.BundleRepository,
	evaluator Evaluator,
	config domain.TriageConfig,
) *TriageService {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaultMaxConcurrency
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = defaultPageSize
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = defaultMaxPageSize
	}
	if config.DefaultPageSize > config.MaxPageSize {
		config.DefaultPageSize = config.MaxPageSize
	}

	return &TriageService{
		logger:    logger,
		patients:  patients,
		bundles:   bundles,
		evaluator: evaluator,
		assembler: NewOverviewAssembler(evaluator),
		config:    config,
		scanSem:   make(chan struct{}, config.MaxConcurrency),
	}
}

// NormalizePage clamps a requested page to the configured bounds.
func (s *TriageService) NormalizePage(page domain.Page) domain.Page {
	if page.Limit <= 0 {
		page.Limit = s.config.DefaultPageSize
	}
	if page.Limit > s.config.MaxPageSize {
		page.Limit = s.config.MaxPageSize
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

// GetPatient returns the registry identity for id.
func (s *TriageService) GetPatient(ctx context.Context, id int64) (*domain.PatientIdentity, error) {
	patient, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", domain.ErrPatientNotFound, id)
		}
		return nil, fmt.Errorf("failed to get patient %d: %w", id, err)
	}
	return patient, nil
}

// ListPatients returns one page of patients and the registry total.
func (s *TriageService) ListPatients(ctx context.Context, page domain.Page) ([]*domain.PatientIdentity, int64, error) {
	page = s.NormalizePage(page)

	patients, err := s.patients.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	total, err := s.patients.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return patients, total, nil
}

// GetOverview builds the overview item for one patient. A patient without a
// clinical bundle gets an unknown overview rather than an error.
func (s *TriageService) GetOverview(ctx context.Context, id int64) (*domain.PatientOverviewItem, error) {
	patient, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.overviewFor(ctx, patient)
}

// RunPipeline returns the patient's bundle together with its alerts.
func (s *TriageService) RunPipeline(ctx context.Context, id int64) (*domain.PipelineResult, error) {
	patient, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	bundle, err := s.lookupBundle(ctx, patient.MRN)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, fmt.Errorf("%w: mrn %s", domain.ErrBundleNotFound, patient.MRN)
	}

	return &domain.PipelineResult{
		Bundle: bundle,
		CDS:    domain.EvaluationResult{Alerts: s.evaluator.Evaluate(bundle)},
	}, nil
}

// EvaluateBundle runs the rule table over an ad-hoc bundle.
func (s *TriageService) EvaluateBundle(bundle *domain.ClinicalBundle) (domain.EvaluationResult, domain.CriticalityStatus) {
	alerts := s.evaluator.Evaluate(bundle)
	return domain.EvaluationResult{Alerts: alerts}, Classify(alerts)
}

// ListCritical scans every patient and returns the critical overviews in
// patient listing order.
func (s *TriageService) ListCritical(ctx context.Context) ([]domain.PatientOverviewItem, error) {
	startTime := time.Now()

	items, err := s.scanOverviews(ctx)
	if err != nil {
		return nil, err
	}

	critical := make([]domain.PatientOverviewItem, 0)
	for _, item := range items {
		if item.IsCritical() {
			critical = append(critical, item)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"scanned":         len(items),
		"critical":        len(critical),
		"processing_time": time.Since(startTime),
	}).Info("Completed critical patient scan")

	return critical, nil
}

// CountCritical returns the number of patients classified critical.
func (s *TriageService) CountCritical(ctx context.Context) (int, error) {
	critical, err := s.ListCritical(ctx)
	if err != nil {
		return 0, err
	}
	return len(critical), nil
}

// scanOverviews pages through the registry and assembles every overview with
// bounded concurrency. Results keep the registry order.
func (s *TriageService) scanOverviews(ctx context.Context) ([]domain.PatientOverviewItem, error) {
	var patients []*domain.PatientIdentity
	for offset := 0; ; offset += s.config.MaxPageSize {
		page, err := s.patients.List(ctx, s.config.MaxPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list patients: %w", err)
		}
		patients = append(patients, page...)
		if len(page) < s.config.MaxPageSize {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("critical scan cancelled: %w", err)
	}

	items := make([]domain.PatientOverviewItem, len(patients))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, patient := range patients {
		wg.Add(1)
		go func(idx int, p *domain.PatientIdentity) {
			defer wg.Done()

			// Acquire semaphore to limit concurrency
			select {
			case s.scanSem <- struct{}{}:
				defer func() { <-s.scanSem }()
			case <-ctx.Done():
				mu.Lock()
				if firstErr == nil {
					firstErr = ctx.Err()
				}
				mu.Unlock()
				return
			}

			item, err := s.overviewFor(ctx, p)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			items[idx] = *item
		}(i, patient)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("critical scan failed: %w", firstErr)
	}
	return items, nil
}

func (s *TriageService) overviewFor(ctx context.Context, patient *domain.PatientIdentity) (*domain.PatientOverviewItem, error) {
	bundle, err := s.lookupBundle(ctx, patient.MRN)
	if err != nil {
		return nil, err
	}

	item := s.assembler.Assemble(*patient, bundle)

	s.logger.WithFields(logrus.Fields(item.Status.LogFields())).WithFields(logrus.Fields{
		"patient_id": patient.ID,
		"alerts":     len(item.Alerts),
	}).Debug("Assembled patient overview")

	return &item, nil
}

// lookupBundle returns nil without error when the patient has no bundle.
func (s *TriageService) lookupBundle(ctx context.Context, mrn string) (*domain.ClinicalBundle, error) {
	bundle, err := s.bundles.GetByMRN(ctx, mrn)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bundle for mrn %s: %w", mrn, err)
	}
	return bundle, nil
}
