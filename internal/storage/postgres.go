package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/shared/config"
	"github.com/medireport/platform/internal/shared/database"
	"github.com/medireport/platform/internal/shared/errors"
	"github.com/medireport/platform/internal/shared/metrics"
)

// PostgresStore persists patients and test results in PostgreSQL
type PostgresStore struct {
	db   *database.DB
	pool *pgxpool.Pool
}

// OpenPostgres connects, applies pending migrations and returns the store
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*PostgresStore, error) {
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	applied, err := database.Migrate(ctx, db.Pool, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info().Int("applied", applied).Msg("postgres storage ready")

	return &PostgresStore{db: db, pool: db.Pool}, nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const testResultColumns = `id, patient_id, test_type, parameters, ai_report, created_at`

func (s *PostgresStore) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	defer observe("get_patient", time.Now())

	query := `
		SELECT id, patient_id, name, age, gender, created_at
		FROM patients
		WHERE patient_id = $1`

	p := &Patient{}
	err := s.pool.QueryRow(ctx, query, patientID).Scan(
		&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CreatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient")
	}
	return p, nil
}

func (s *PostgresStore) CreatePatient(ctx context.Context, np NewPatient) (*Patient, error) {
	defer observe("create_patient", time.Now())

	query := `
		INSERT INTO patients (patient_id, name, age, gender)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id) DO NOTHING
		RETURNING id, patient_id, name, age, gender, created_at`

	p := &Patient{}
	err := s.pool.QueryRow(ctx, query, np.PatientID, np.Name, np.Age, np.Gender).Scan(
		&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CreatedAt,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Conflict("patient with this patientId already exists")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create patient")
	}
	return p, nil
}

func (s *PostgresStore) CreateTestResult(ctx context.Context, nt NewTestResult) (*TestResult, error) {
	defer observe("create_test_result", time.Now())

	params, err := json.Marshal(parametersOrEmpty(nt.Parameters))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode parameters")
	}

	query := `
		INSERT INTO test_results (patient_id, test_type, parameters)
		VALUES ($1, $2, $3)
		RETURNING ` + testResultColumns

	t, err := scanTestResult(s.pool.QueryRow(ctx, query, nt.PatientID, nt.TestType, params))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create test result")
	}
	return t, nil
}

func (s *PostgresStore) GetTestResults(ctx context.Context, patientID string) ([]TestResult, error) {
	defer observe("get_test_results", time.Now())

	query := `SELECT ` + testResultColumns + `
		FROM test_results
		WHERE patient_id = $1
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list test results")
	}
	defer rows.Close()

	results := []TestResult{}
	for rows.Next() {
		t, err := scanTestResult(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan test result")
		}
		results = append(results, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list test results")
	}
	return results, nil
}

func (s *PostgresStore) GetTestResult(ctx context.Context, id int64) (*TestResult, error) {
	defer observe("get_test_result", time.Now())

	query := `SELECT ` + testResultColumns + ` FROM test_results WHERE id = $1`

	t, err := scanTestResult(s.pool.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get test result")
	}
	return t, nil
}

func (s *PostgresStore) UpdateTestResultWithReport(ctx context.Context, id int64, r *report.StructuredReport) (*TestResult, error) {
	defer observe("update_test_result", time.Now())

	var payload []byte
	if r != nil {
		var err error
		if payload, err = json.Marshal(r); err != nil {
			return nil, errors.Wrap(err, "failed to encode report")
		}
	}

	query := `
		UPDATE test_results SET ai_report = $2
		WHERE id = $1
		RETURNING ` + testResultColumns

	t, err := scanTestResult(s.pool.QueryRow(ctx, query, id, payload))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update test result")
	}
	return t, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func scanTestResult(row pgx.Row) (*TestResult, error) {
	t := &TestResult{}
	var params, aiReport []byte
	if err := row.Scan(&t.ID, &t.PatientID, &t.TestType, &params, &aiReport, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeTestResultJSON(t, params, aiReport); err != nil {
		return nil, err
	}
	return t, nil
}

// decodeTestResultJSON fills the JSON columns shared by both SQL backends
func decodeTestResultJSON(t *TestResult, params, aiReport []byte) error {
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Parameters); err != nil {
			return err
		}
	}
	if len(aiReport) > 0 && string(aiReport) != "null" {
		t.AIReport = &report.StructuredReport{}
		if err := json.Unmarshal(aiReport, t.AIReport); err != nil {
			return err
		}
	}
	return nil
}

func parametersOrEmpty(p report.Parameters) report.Parameters {
	if p == nil {
		return report.Parameters{}
	}
	return p
}

func observe(op string, start time.Time) {
	metrics.RecordDBQuery(config.StoragePostgres, op, time.Since(start))
}

var _ Store = (*PostgresStore)(nil)
