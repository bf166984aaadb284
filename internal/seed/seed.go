// Package seed loads the patient registry CSV and FHIR bundle documents into
// a record store.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-triage-server/internal/domain"
	"github.com/clinical-triage-server/internal/fhir"
)

const registryPageSize = 500

// Required CSV columns. race is optional.
var requiredColumns = []string{"patient_id", "mrn", "first_name", "last_name", "age", "gender"}

// Target is a record store that can be written and read back for MRN lookups.
type Target interface {
	domain.RecordWriter
	domain.PatientRepository
}

// Options selects the inputs to load. Either may be empty.
type Options struct {
	PatientsCSV string
	BundlesDir  string
}

// Report summarises one seeding run.
type Report struct {
	Patients int      `json:"patients"`
	Bundles  int      `json:"bundles"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Seeder writes records into a Target.
type Seeder struct {
	target Target
	logger *logrus.Logger
}

// NewSeeder creates a seeder for target.
func NewSeeder(target Target, logger *logrus.Logger) *Seeder {
	return &Seeder{target: target, logger: logger}
}

// Run loads the patients CSV first so bundles can be linked to freshly
// loaded patients.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.PatientsCSV == "" && opts.BundlesDir == "" {
		return nil, errors.New("nothing to seed: provide a patients CSV or a bundles directory")
	}

	report := &Report{}

	if opts.PatientsCSV != "" {
		f, err := os.Open(opts.PatientsCSV)
		if err != nil {
			return nil, fmt.Errorf("opening patients csv: %w", err)
		}
		n, err := s.LoadPatients(ctx, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		report.Patients = n
	}

	if opts.BundlesDir != "" {
		n, skipped, err := s.LoadBundles(ctx, opts.BundlesDir)
		if err != nil {
			return nil, err
		}
		report.Bundles = n
		report.Skipped = skipped
	}

	s.logger.WithFields(logrus.Fields{
		"patients": report.Patients,
		"bundles":  report.Bundles,
		"skipped":  len(report.Skipped),
	}).Info("Seeding completed")

	return report, nil
}

// LoadPatients reads registry rows with a header line and upserts each
// patient. Errors name the 1-based data row.
func (s *Seeder) LoadPatients(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	columns, err := indexColumns(header)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return loaded, fmt.Errorf("row %d: %w", row, err)
		}

		patient, err := parsePatient(record, columns)
		if err != nil {
			return loaded, fmt.Errorf("row %d: %w", row, err)
		}
		if err := s.target.SavePatient(ctx, patient); err != nil {
			return loaded, fmt.Errorf("row %d: %w", row, err)
		}
		loaded++
	}

	s.logger.WithField("count", loaded).Info("Loaded patients")
	return loaded, nil
}

// LoadBundles stores every *.json bundle in dir. The MRN comes from the
// Patient identifier, or from the file name when the bundle has none.
// Bundles whose MRN is not in the registry are skipped and returned.
func (s *Seeder) LoadBundles(ctx context.Context, dir string) (int, []string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, nil, fmt.Errorf("listing bundles: %w", err)
	}
	sort.Strings(paths)

	registry, err := s.registryIndex(ctx)
	if err != nil {
		return 0, nil, err
	}

	loaded := 0
	var skipped []string
	for _, path := range paths {
		name := filepath.Base(path)

		data, err := os.ReadFile(path)
		if err != nil {
			return loaded, skipped, fmt.Errorf("reading %s: %w", name, err)
		}
		bundle, err := fhir.DecodeBundle(data)
		if err != nil {
			return loaded, skipped, fmt.Errorf("%s: %w", name, err)
		}

		mrn := bundle.MRN
		if mrn == "" {
			mrn = strings.TrimSuffix(name, filepath.Ext(name))
		}

		patientID, ok := registry[mrn]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"file": name,
				"mrn":  mrn,
			}).Warn("Skipping bundle for unregistered MRN")
			skipped = append(skipped, name)
			continue
		}

		if err := s.target.SaveBundle(ctx, patientID, mrn, data); err != nil {
			return loaded, skipped, fmt.Errorf("%s: %w", name, err)
		}
		loaded++
	}

	s.logger.WithField("count", loaded).Info("Loaded clinical bundles")
	return loaded, skipped, nil
}

func (s *Seeder) registryIndex(ctx context.Context) (map[string]int64, error) {
	index := make(map[string]int64)
	for offset := 0; ; offset += registryPageSize {
		page, err := s.target.List(ctx, registryPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("reading patient registry: %w", err)
		}
		for _, p := range page {
			index[p.MRN] = p.ID
		}
		if len(page) < registryPageSize {
			return index, nil
		}
	}
}

func indexColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv header missing columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func parsePatient(record []string, columns map[string]int) (*domain.PatientIdentity, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	id, err := strconv.ParseInt(field("patient_id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, domain.NewValidationError("patient_id", "must be a positive integer", field("patient_id"))
	}
	age, err := strconv.Atoi(field("age"))
	if err != nil || age < 0 {
		return nil, domain.NewValidationError("age", "must be a non-negative integer", field("age"))
	}
	mrn := field("mrn")
	if mrn == "" {
		return nil, domain.NewValidationError("mrn", "is required", mrn)
	}

	return &domain.PatientIdentity{
		ID:        id,
		MRN:       mrn,
		FirstName: field("first_name"),
		LastName:  field("last_name"),
		Age:       age,
		Gender:    field("gender"),
		Race:      field("race"),
	}, nil
}
