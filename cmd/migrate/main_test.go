package main

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_dim_market_price.sql", true, 1, "create_dim_market_price"},
		{"0012_add_column.sql", true, 12, "add_column"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			v, name, ok := parseFilename(tt.filename)
			if ok != tt.valid {
				t.Fatalf("parseFilename(%q) ok = %v, want %v", tt.filename, ok, tt.valid)
			}
			if v != tt.version || name != tt.name {
				t.Errorf("parseFilename(%q) = %d, %q, want %d, %q", tt.filename, v, name, tt.version, tt.name)
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (x INT64);")},
		"0001_first.sql":  {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (x INT64);")},
		"README.md":       {Data: []byte("ignored")},
	}

	migrations, err := readMigrations(fsys, "proj", "crypto")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations not sorted by version: %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if !strings.Contains(migrations[0].SQL, "`proj.crypto.a`") {
		t.Errorf("placeholders not replaced: %s", migrations[0].SQL)
	}

	// The checksum ignores the target project and dataset.
	other, err := readMigrations(fsys, "other", "ds")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if other[0].Checksum != migrations[0].Checksum {
		t.Error("checksum changed with project/dataset")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"0001_b.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := readMigrations(fsys, "p", "d"); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "a", Checksum: checksum([]byte("a"))},
		{Version: 2, Name: "b", Checksum: checksum([]byte("b"))},
	}

	t.Run("skips applied", func(t *testing.T) {
		got, err := pending(migrations, []AppliedMigration{{Version: 1, Checksum: checksum([]byte("a"))}})
		if err != nil {
			t.Fatalf("pending() error = %v", err)
		}
		if len(got) != 1 || got[0].Version != 2 {
			t.Errorf("pending() = %+v, want only version 2", got)
		}
	})

	t.Run("modified applied migration", func(t *testing.T) {
		_, err := pending(migrations, []AppliedMigration{{Version: 1, Checksum: checksum([]byte("changed"))}})
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("pending() error = %v, want ErrChecksumMismatch", err)
		}
	})

	t.Run("legacy row without checksum", func(t *testing.T) {
		got, err := pending(migrations, []AppliedMigration{{Version: 1}, {Version: 2}})
		if err != nil || len(got) != 0 {
			t.Errorf("pending() = %v, %v, want none", got, err)
		}
	})
}
