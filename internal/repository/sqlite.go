package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/clinical-triage-server/internal/database"
	"github.com/clinical-triage-server/internal/domain"
)

// SQLStore is the record store over database/sql. It is used with the
// embedded SQLite driver for single-node and MCP deployments.
type SQLStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the SQLite database at dbPath,
// applies the embedded migrations and returns a store over it.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *logrus.Logger) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := database.Migrate(ctx, database.SQLiteURL(dbPath), database.DialectSQLite, logger); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite record store opened")

	return NewSQLStore(db, logger), nil
}

// NewSQLStore wraps an already-open database whose schema is in place.
func NewSQLStore(db *sql.DB, logger *logrus.Logger) *SQLStore {
	return &SQLStore{db: db, log: logger}
}

// GetByID retrieves a patient by registry id
func (s *SQLStore) GetByID(ctx context.Context, id int64) (*domain.PatientIdentity, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = ?`

	patient, err := scanPatient(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting patient by ID: %w", err)
	}
	return patient, nil
}

// List retrieves patients ordered by id with pagination
func (s *SQLStore) List(ctx context.Context, limit, offset int) ([]*domain.PatientIdentity, error) {
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
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
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting patients: %w", err)
	}
	return count, nil
}

// GetByMRN retrieves and decodes the bundle linked to mrn
func (s *SQLStore) GetByMRN(ctx context.Context, mrn string) (*domain.ClinicalBundle, error) {
	var patientID int64
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT patient_id, bundle FROM clinical_bundles WHERE mrn = ?`, mrn,
	).Scan(&patientID, &document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mrn %s: %w", mrn, domain.ErrBundleNotFound)
		}
		return nil, fmt.Errorf("getting clinical bundle: %w", err)
	}

	return decodeStoredBundle(patientID, mrn, []byte(document))
}

// SavePatient inserts a patient or replaces the row with the same id
func (s *SQLStore) SavePatient(ctx context.Context, patient *domain.PatientIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mrn = excluded.mrn,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			age = excluded.age,
			gender = excluded.gender,
			race = excluded.race,
			updated_at = CURRENT_TIMESTAMP`,
		patient.ID,
		patient.MRN,
		patient.FirstName,
		patient.LastName,
		patient.Age,
		patient.Gender,
		patient.Race,
	)
	if err != nil {
		return fmt.Errorf("saving patient %d: %w", patient.ID, err)
	}
	return nil
}

// SaveBundle stores the bundle document for mrn, replacing any previous one
func (s *SQLStore) SaveBundle(ctx context.Context, patientID int64, mrn string, document []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clinical_bundles (mrn, patient_id, bundle)
		VALUES (?, ?, ?)
		ON CONFLICT(mrn) DO UPDATE SET
			patient_id = excluded.patient_id,
			bundle = excluded.bundle,
			updated_at = CURRENT_TIMESTAMP`,
		mrn, patientID, string(document),
	)
	if err != nil {
		return fmt.Errorf("saving clinical bundle for mrn %s: %w", mrn, err)
	}
	return nil
}

// Health pings the database
func (s *SQLStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var (
	_ domain.RecordStore  = (*SQLStore)(nil)
	_ domain.RecordWriter = (*SQLStore)(nil)
)
