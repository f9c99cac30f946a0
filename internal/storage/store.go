package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/shared/config"
)

// Gender of a patient
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// IsValid reports whether g is one of the accepted values
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Patient is registered once per external patient identifier
type Patient struct {
	ID        int64     `json:"id"`
	PatientID string    `json:"patientId"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Gender    Gender    `json:"gender"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewPatient holds the fields supplied when registering a patient
type NewPatient struct {
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    Gender `json:"gender"`
}

// TestResult is one submitted panel. AIReport is nil while pending.
type TestResult struct {
	ID         int64                    `json:"id"`
	PatientID  string                   `json:"patientId"`
	TestType   string                   `json:"testType"`
	Parameters report.Parameters        `json:"parameters"`
	AIReport   *report.StructuredReport `json:"aiReport"`
	CreatedAt  time.Time                `json:"createdAt"`
}

// Pending reports whether no report has been attached yet
func (t *TestResult) Pending() bool {
	return t.AIReport == nil
}

// NewTestResult holds the fields supplied when submitting a panel
type NewTestResult struct {
	PatientID  string            `json:"patientId"`
	TestType   string            `json:"testType"`
	Parameters report.Parameters `json:"parameters"`
}

// Store persists patients and test results. Lookups that miss return
// (nil, nil); CreatePatient returns a Conflict error for a known patientId.
type Store interface {
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
	CreatePatient(ctx context.Context, p NewPatient) (*Patient, error)
	CreateTestResult(ctx context.Context, t NewTestResult) (*TestResult, error)
	GetTestResults(ctx context.Context, patientID string) ([]TestResult, error)
	GetTestResult(ctx context.Context, id int64) (*TestResult, error)
	UpdateTestResultWithReport(ctx context.Context, id int64, r *report.StructuredReport) (*TestResult, error)
	Health(ctx context.Context) error
	Close()
}

// Open creates the store selected by cfg.Storage.Driver
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Storage.Driver {
	case "", config.StorageMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		return NewMemoryStore(), nil
	case config.StoragePostgres:
		return OpenPostgres(ctx, cfg.Database, logger)
	case config.StorageSQLServer:
		return OpenSQLServer(ctx, cfg.SQLServer, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
