package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/database"
	"github.com/clinical-triage-server/internal/domain"
)

// PostgresStore is the PostgreSQL-backed record store.
type PostgresStore struct {
	*PatientRepository
	*BundleRepository
	db *database.DB
}

// NewPostgresStore creates a record store over an open pool.
func NewPostgresStore(db *database.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		PatientRepository: NewPatientRepository(db.Pool, logger),
		BundleRepository:  NewBundleRepository(db.Pool, logger),
		db:                db,
	}
}

// Health pings the pool.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// SavePatient implements domain.RecordWriter.
func (s *PostgresStore) SavePatient(ctx context.Context, patient *domain.PatientIdentity) error {
	return s.PatientRepository.Save(ctx, patient)
}

// SaveBundle implements domain.RecordWriter.
func (s *PostgresStore) SaveBundle(ctx context.Context, patientID int64, mrn string, document []byte) error {
	return s.BundleRepository.Save(ctx, patientID, mrn, document)
}

var (
	_ domain.RecordStore  = (*PostgresStore)(nil)
	_ domain.RecordWriter = (*PostgresStore)(nil)
)
