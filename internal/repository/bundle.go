package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
)

// BundleRepository handles clinical bundle persistence in PostgreSQL
type BundleRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewBundleRepository creates a new bundle repository
func NewBundleRepository(db *pgxpool.Pool, logger *logrus.Logger) *BundleRepository {
	return &BundleRepository{
		db:  db,
		log: logger,
	}
}

// Save stores the bundle document for mrn, replacing any previous one
func (r *BundleRepository) Save(ctx context.Context, patientID int64, mrn string, document []byte) error {
	query := `
		INSERT INTO clinical_bundles (mrn, patient_id, bundle)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (mrn) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			bundle = EXCLUDED.bundle,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, mrn, patientID, string(document)); err != nil {
		r.log.WithFields(logrus.Fields{
			"mrn":   mrn,
			"error": err,
		}).Error("Failed to save clinical bundle")
		return fmt.Errorf("saving clinical bundle: %w", err)
	}

	r.log.WithField("mrn", mrn).Debug("Clinical bundle saved")
	return nil
}

// GetByMRN retrieves and decodes the bundle linked to mrn
func (r *BundleRepository) GetByMRN(ctx context.Context, mrn string) (*domain.ClinicalBundle, error) {
	query := `SELECT patient_id, bundle::text FROM clinical_bundles WHERE mrn = $1`

	var patientID int64
	var document string
	err := r.db.QueryRow(ctx, query, mrn).Scan(&patientID, &document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mrn %s: %w", mrn, domain.ErrBundleNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"mrn":   mrn,
			"error": err,
		}).Error("Failed to get clinical bundle")
		return nil, fmt.Errorf("getting clinical bundle: %w", err)
	}

	return decodeStoredBundle(patientID, mrn, []byte(document))
}

// decodeStoredBundle decodes a stored document and stamps the row's link keys
// onto it.
func decodeStoredBundle(patientID int64, mrn string, document []byte) (*domain.ClinicalBundle, error) {
	bundle, err := fhir.DecodeBundle(document)
	if err != nil {
		return nil, fmt.Errorf("decoding stored bundle for mrn %s: %w", mrn, err)
	}
	bundle.PatientID = patientID
	bundle.MRN = mrn
	return bundle, nil
}
