package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

// useMigrations swaps MigrationsFS for the duration of a test.
func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_090000_events.up.sql":   {Data: []byte("CREATE TABLE events (id TEXT PRIMARY KEY);")},
		"20261001_090000_events.down.sql": {Data: []byte("DROP TABLE events;")},
		"20261002_090000_tags.up.sql":     {Data: []byte("CREATE TABLE tags (name TEXT PRIMARY KEY);")},
		"README.md":                       {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"events", "tags"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateFailureStopsAtBadMigration(t *testing.T) {
	files := testMigrations()
	files["20261003_090000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE ((")}
	useMigrations(t, files)
	db := openTestDB(t)

	err := db.Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "20261003_090000") {
		t.Fatalf("Migrate() error = %v, want failure naming broken migration", err)
	}
	if !tableExists(t, db, "tags") {
		t.Error("earlier migrations should stay committed")
	}
}

func TestMigrateDown(t *testing.T) {
	files := testMigrations()
	delete(files, "20261002_090000_tags.up.sql")
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "events") {
		t.Error("events table still exists after rollback")
	}

	_, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDownWithoutDownSQL(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20261002_090000_tags.up.sql": {Data: []byte("CREATE TABLE tags (name TEXT);")},
	})
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() should fail without down SQL")
	}
}

func TestMigrateNoFS(t *testing.T) {
	origFS := MigrationsFS
	MigrationsFS = nil
	t.Cleanup(func() { MigrationsFS = origFS })

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
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
		{"20261019_120000_plug_history.up.sql", "20261019_120000", "plug_history", true, true},
		{"20261019_120000_plug_history.down.sql", "20261019_120000", "plug_history", false, true},
		{"20261019_120000.up.sql", "20261019_120000", "20261019_120000", true, true},
		{"20261019_120000_plug_history.sql", "", "", false, false},
		{"plug_history.up.sql", "", "", false, false},
		{"2026_1200_x.up.sql", "", "", false, false},
		{"20261019_120000_notes.up.txt", "", "", false, false},
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
