package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFiles()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Errorf("migrations not sorted: %v", files)
		}
	}
}

func TestInitialMigrationSchema(t *testing.T) {
	content, err := fs.ReadFile(migrationsFS, "migrations/001_create_lab_reports.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := string(content)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS patients",
		"patient_id  TEXT NOT NULL UNIQUE",
		"CREATE TABLE IF NOT EXISTS test_results",
		"parameters  JSONB NOT NULL",
		"ai_report   JSONB,",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected migration to contain %q", want)
		}
	}
}
