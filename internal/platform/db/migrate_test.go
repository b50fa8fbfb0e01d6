package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"002_reference.sql": "CREATE TABLE b (id int);",
		"001_core.sql":      "CREATE TABLE a (id int);",
		"010_ledger.sql":    "CREATE TABLE c (id int);",
		"README.md":         "not a migration",
		"notes.sql":         "no numeric prefix",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	wantOrder := []int{1, 2, 10}
	for i, mig := range migrations {
		if mig.Version != wantOrder[i] {
			t.Errorf("position %d: expected version %d, got %d", i, wantOrder[i], mig.Version)
		}
	}
	if migrations[0].SQL != "CREATE TABLE a (id int);" {
		t.Errorf("unexpected SQL for first migration: %q", migrations[0].SQL)
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
