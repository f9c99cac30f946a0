package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/shared/config"
	"github.com/medireport/platform/internal/shared/errors"
	"github.com/medireport/platform/internal/shared/metrics"
)

// SQL Server unique constraint / unique index violations
const (
	mssqlUniqueConstraint = 2627
	mssqlUniqueIndex      = 2601
)

var sqlServerSchema = []string{
	`IF OBJECT_ID(N'dbo.patients', N'U') IS NULL
	CREATE TABLE dbo.patients (
		id          BIGINT IDENTITY(1,1) PRIMARY KEY,
		patient_id  NVARCHAR(255) NOT NULL UNIQUE,
		name        NVARCHAR(255) NOT NULL,
		age         INT NOT NULL CHECK (age > 0 AND age <= 150),
		gender      NVARCHAR(10) NOT NULL CHECK (gender IN ('male', 'female', 'other')),
		created_at  DATETIMEOFFSET NOT NULL DEFAULT SYSDATETIMEOFFSET()
	)`,
	`IF OBJECT_ID(N'dbo.test_results', N'U') IS NULL
	CREATE TABLE dbo.test_results (
		id          BIGINT IDENTITY(1,1) PRIMARY KEY,
		patient_id  NVARCHAR(255) NOT NULL,
		test_type   NVARCHAR(32) NOT NULL,
		parameters  NVARCHAR(MAX) NOT NULL,
		ai_report   NVARCHAR(MAX) NULL,
		created_at  DATETIMEOFFSET NOT NULL DEFAULT SYSDATETIMEOFFSET()
	)`,
	`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_test_results_patient_id')
	CREATE INDEX idx_test_results_patient_id ON dbo.test_results (patient_id)`,
}

// SQLServerStore persists patients and test results in Microsoft SQL Server
type SQLServerStore struct {
	db *sql.DB
}

// OpenSQLServer connects and creates the schema if it does not exist
func OpenSQLServer(ctx context.Context, cfg config.SQLServerConfig, logger zerolog.Logger) (*SQLServerStore, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range sqlServerSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	logger.Info().Msg("sqlserver storage ready")

	return &SQLServerStore{db: db}, nil
}

func (s *SQLServerStore) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	defer observeSQLServer("get_patient", time.Now())

	query := `
		SELECT id, patient_id, name, age, gender, created_at
		FROM dbo.patients
		WHERE patient_id = @patientId`

	p := &Patient{}
	err := s.db.QueryRowContext(ctx, query, sql.Named("patientId", patientID)).Scan(
		&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CreatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient")
	}
	return p, nil
}

func (s *SQLServerStore) CreatePatient(ctx context.Context, np NewPatient) (*Patient, error) {
	defer observeSQLServer("create_patient", time.Now())

	query := `
		INSERT INTO dbo.patients (patient_id, name, age, gender)
		OUTPUT INSERTED.id, INSERTED.patient_id, INSERTED.name, INSERTED.age, INSERTED.gender, INSERTED.created_at
		VALUES (@patientId, @name, @age, @gender)`

	p := &Patient{}
	err := s.db.QueryRowContext(ctx, query,
		sql.Named("patientId", np.PatientID),
		sql.Named("name", np.Name),
		sql.Named("age", np.Age),
		sql.Named("gender", string(np.Gender)),
	).Scan(&p.ID, &p.PatientID, &p.Name, &p.Age, &p.Gender, &p.CreatedAt)
	if isDuplicateKey(err) {
		return nil, errors.Conflict("patient with this patientId already exists")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create patient")
	}
	return p, nil
}

func (s *SQLServerStore) CreateTestResult(ctx context.Context, nt NewTestResult) (*TestResult, error) {
	defer observeSQLServer("create_test_result", time.Now())

	params, err := json.Marshal(parametersOrEmpty(nt.Parameters))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode parameters")
	}

	query := `
		INSERT INTO dbo.test_results (patient_id, test_type, parameters)
		OUTPUT ` + insertedColumns("INSERTED") + `
		VALUES (@patientId, @testType, @parameters)`

	t, err := scanSQLServerTestResult(s.db.QueryRowContext(ctx, query,
		sql.Named("patientId", nt.PatientID),
		sql.Named("testType", nt.TestType),
		sql.Named("parameters", string(params)),
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create test result")
	}
	return t, nil
}

func (s *SQLServerStore) GetTestResults(ctx context.Context, patientID string) ([]TestResult, error) {
	defer observeSQLServer("get_test_results", time.Now())

	query := `SELECT ` + testResultColumns + `
		FROM dbo.test_results
		WHERE patient_id = @patientId
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("patientId", patientID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list test results")
	}
	defer rows.Close()

	results := []TestResult{}
	for rows.Next() {
		t, err := scanSQLServerTestResult(rows)
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

func (s *SQLServerStore) GetTestResult(ctx context.Context, id int64) (*TestResult, error) {
	defer observeSQLServer("get_test_result", time.Now())

	query := `SELECT ` + testResultColumns + ` FROM dbo.test_results WHERE id = @id`

	t, err := scanSQLServerTestResult(s.db.QueryRowContext(ctx, query, sql.Named("id", id)))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get test result")
	}
	return t, nil
}

func (s *SQLServerStore) UpdateTestResultWithReport(ctx context.Context, id int64, r *report.StructuredReport) (*TestResult, error) {
	defer observeSQLServer("update_test_result", time.Now())

	var payload sql.NullString
	if r != nil {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode report")
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		UPDATE dbo.test_results SET ai_report = @aiReport
		OUTPUT ` + insertedColumns("INSERTED") + `
		WHERE id = @id`

	t, err := scanSQLServerTestResult(s.db.QueryRowContext(ctx, query,
		sql.Named("aiReport", payload),
		sql.Named("id", id),
	))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update test result")
	}
	return t, nil
}

func (s *SQLServerStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLServerStore) Close() {
	s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLServerTestResult(row rowScanner) (*TestResult, error) {
	t := &TestResult{}
	var params string
	var aiReport sql.NullString
	if err := row.Scan(&t.ID, &t.PatientID, &t.TestType, &params, &aiReport, &t.CreatedAt); err != nil {
		return nil, err
	}

	var reportJSON []byte
	if aiReport.Valid {
		reportJSON = []byte(aiReport.String)
	}
	if err := decodeTestResultJSON(t, []byte(params), reportJSON); err != nil {
		return nil, err
	}
	return t, nil
}

// insertedColumns prefixes the test result columns for an OUTPUT clause
func insertedColumns(prefix string) string {
	return fmt.Sprintf("%[1]s.id, %[1]s.patient_id, %[1]s.test_type, %[1]s.parameters, %[1]s.ai_report, %[1]s.created_at", prefix)
}

func isDuplicateKey(err error) bool {
	var sqlErr mssql.Error
	if stderrors.As(err, &sqlErr) {
		return sqlErr.Number == mssqlUniqueConstraint || sqlErr.Number == mssqlUniqueIndex
	}
	return false
}

func observeSQLServer(op string, start time.Time) {
	metrics.RecordDBQuery(config.StorageSQLServer, op, time.Since(start))
}

var _ Store = (*SQLServerStore)(nil)
