package domain

import (
	"context"
)

// PatientRepository is the read-only patient registry.
type PatientRepository interface {
	GetByID(ctx context.Context, id int64) (*PatientIdentity, error)
	List(ctx context.Context, limit, offset int) ([]*PatientIdentity, error)
	Count(ctx context.Context) (int64, error)
}

// BundleRepository looks up clinical bundles by the patient linking key.
type BundleRepository interface {
	GetByMRN(ctx context.Context, mrn string) (*ClinicalBundle, error)
}

// RecordStore is the complete read side of the record store.
type RecordStore interface {
	PatientRepository
	BundleRepository
	Health(ctx context.Context) error
}

// RecordWriter loads records into the store. Only the seeding tool writes.
type RecordWriter interface {
	SavePatient(ctx context.Context, patient *PatientIdentity) error
	SaveBundle(ctx context.Context, patientID int64, mrn string, document []byte) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
