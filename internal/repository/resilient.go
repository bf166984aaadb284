package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/clinical-triage-server/internal/domain"
)

// ResilientStore guards record store reads with a circuit breaker. Lookups
// that find nothing, and bundles that fail to decode, are expected outcomes
// and never count toward tripping it.
type ResilientStore struct {
	next    domain.RecordStore
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientStore wraps next with a circuit breaker configured from cfg.
func NewResilientStore(next domain.RecordStore, cfg domain.BreakerConfig, logger *logrus.Logger) *ResilientStore {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "RecordStore",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrInvalidBundle) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &ResilientStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// State reports the breaker state.
func (s *ResilientStore) State() gobreaker.State {
	return s.breaker.State()
}

// GetByID implements domain.PatientRepository.
func (s *ResilientStore) GetByID(ctx context.Context, id int64) (*domain.PatientIdentity, error) {
	out, err := s.execute(func() (interface{}, error) {
		return s.next.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.PatientIdentity), nil
}

// List implements domain.PatientRepository.
func (s *ResilientStore) List(ctx context.Context, limit, offset int) ([]*domain.PatientIdentity, error) {
	out, err := s.execute(func() (interface{}, error) {
		return s.next.List(ctx, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return out.([]*domain.PatientIdentity), nil
}

// Count implements domain.PatientRepository.
func (s *ResilientStore) Count(ctx context.Context) (int64, error) {
	out, err := s.execute(func() (interface{}, error) {
		return s.next.Count(ctx)
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

// GetByMRN implements domain.BundleRepository.
func (s *ResilientStore) GetByMRN(ctx context.Context, mrn string) (*domain.ClinicalBundle, error) {
	out, err := s.execute(func() (interface{}, error) {
		return s.next.GetByMRN(ctx, mrn)
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.ClinicalBundle), nil
}

// Health bypasses the breaker so probes see the real store state.
func (s *ResilientStore) Health(ctx context.Context) error {
	return s.next.Health(ctx)
}

func (s *ResilientStore) execute(op func() (interface{}, error)) (interface{}, error) {
	out, err := s.breaker.Execute(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return out, err
}

var _ domain.RecordStore = (*ResilientStore)(nil)
