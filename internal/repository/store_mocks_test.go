package repository

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/clinical-triage-server/internal/domain"
)

// MockRecordStore is a mock implementation of domain.RecordStore
type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) GetByID(ctx context.Context, id int64) (*domain.PatientIdentity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PatientIdentity), args.Error(1)
}

func (m *MockRecordStore) List(ctx context.Context, limit, offset int) ([]*domain.PatientIdentity, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PatientIdentity), args.Error(1)
}

func (m *MockRecordStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRecordStore) GetByMRN(ctx context.Context, mrn string) (*domain.ClinicalBundle, error) {
	args := m.Called(ctx, mrn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClinicalBundle), args.Error(1)
}

func (m *MockRecordStore) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
