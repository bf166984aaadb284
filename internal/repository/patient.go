package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
)

const patientColumns = `id, mrn, first_name, last_name, age, gender, race`

// PatientRepository handles patient registry persistence in PostgreSQL
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

// Save inserts a patient or replaces the existing row with the same id
func (r *PatientRepository) Save(ctx context.Context, patient *domain.PatientIdentity) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			mrn = EXCLUDED.mrn,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			race = EXCLUDED.race,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query,
		patient.ID,
		patient.MRN,
		patient.FirstName,
		patient.LastName,
		patient.Age,
		patient.Gender,
		patient.Race,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patient.ID,
			"error":      err,
		}).Error("Failed to save patient")
		return fmt.Errorf("saving patient: %w", err)
	}

	r.log.WithField("patient_id", patient.ID).Debug("Patient saved")
	return nil
}

// GetByID retrieves a patient by registry id
func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*domain.PatientIdentity, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	patient, err := scanPatient(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient %d: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to get patient by ID")
		return nil, fmt.Errorf("getting patient by ID: %w", err)
	}

	return patient, nil
}

// List retrieves patients ordered by id with pagination
func (r *PatientRepository) List(ctx context.Context, limit, offset int) ([]*domain.PatientIdentity, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list patients")
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	patients := make([]*domain.PatientIdentity, 0)
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patient row: %w", err)
		}
		patients = append(patients, patient)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patient rows: %w", err)
	}

	return patients, nil
}

// Count returns the number of registered patients
func (r *PatientRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting patients: %w", err)
	}
	return count, nil
}

// rowScanner covers pgx.Row, pgx.Rows, *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(s rowScanner) (*domain.PatientIdentity, error) {
	var p domain.PatientIdentity
	err := s.Scan(
		&p.ID,
		&p.MRN,
		&p.FirstName,
		&p.LastName,
		&p.Age,
		&p.Gender,
		&p.Race,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
