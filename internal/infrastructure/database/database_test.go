package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

// openTestDB opens a fresh database in a temporary directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "dti.db"), WALMode: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

var testMigrations = fstest.MapFS{
	"20261001_120000_runs.up.sql": {Data: []byte(`
		CREATE TABLE runs (id TEXT PRIMARY KEY);
		CREATE INDEX idx_runs_id ON runs(id);`)},
	"20261001_120000_runs.down.sql":   {Data: []byte(`DROP TABLE runs;`)},
	"20261002_090000_latch.up.sql":    {Data: []byte(`CREATE TABLE latch (unsafe INTEGER NOT NULL);`)},
	"20261002_090000_latch.down.sql":  {Data: []byte(`DROP TABLE latch;`)},
	"README.md":                       {Data: []byte("not a migration")},
	"notes.sql":                       {Data: []byte("SELECT 1;")},
	"20261003_bad.up.sql":             {Data: []byte("SELECT 1;")},
	"subdir/20261004_000000_x.up.sql": {Data: []byte("SELECT 1;")},
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "var", "lib", "dti", "dti.db")
		db, err := Open(Config{Path: path})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			t.Errorf("directory not created: %v", err)
		}
		if db.Path() != path {
			t.Errorf("Path() = %q, want %q", db.Path(), path)
		}
	})

	t.Run("requires a path", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Error("Open() with empty path returned nil error")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // closing on purpose
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() after Close returned nil error")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"20261001_120000_runs.up.sql", "20261001_120000", "runs", true, true},
		{"20261001_120000_unsafe_latch.down.sql", "20261001_120000", "unsafe_latch", false, true},
		{"20261001_120000.up.sql", "20261001_120000", "", true, true},
		{"20261001_120000_runs.sql", "", "", false, false},
		{"20261003_bad.up.sql", "", "", false, false},
		{"runs.up.txt", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			if ok != tt.ok || version != tt.version || name != tt.name || up != tt.up {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v, %v), want (%q, %q, %v, %v)",
					tt.file, version, name, up, ok, tt.version, tt.name, tt.up, tt.ok)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"runs", "latch"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied/pending = %d/%d, want 2/0", len(applied), len(pending))
	}
	if applied[0].Version != "20261001_120000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("first applied = %+v", applied[0])
	}

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='latch'").Scan(&count); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if count != 0 {
		t.Error("latch table still exists after MigrateDown")
	}

	_, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "latch" {
		t.Errorf("pending = %+v, want the latch migration", pending)
	}
}

func TestMigrateFailureStops(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	broken := fstest.MapFS{
		"20261001_120000_ok.up.sql":     {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
		"20261002_120000_broken.up.sql": {Data: []byte(`CREATE TABLE;`)},
	}
	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() with broken SQL returned nil error")
	}

	applied, pending, err := db.MigrationStatus(ctx, broken)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied/pending = %d/%d, want 1/1", len(applied), len(pending))
	}
}

func TestLoadMigrationsNeedsUp(t *testing.T) {
	orphan := fstest.MapFS{
		"20261001_120000_orphan.down.sql": {Data: []byte(`DROP TABLE x;`)},
	}
	if _, err := LoadMigrations(orphan); err == nil {
		t.Error("LoadMigrations() with a down-only migration returned nil error")
	}
}
