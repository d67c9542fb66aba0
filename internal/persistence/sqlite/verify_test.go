// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ragbox.db")
	db, err := Open(context.Background(), path, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestVerifyIntegrityMissingFile(t *testing.T) {
	_, err := VerifyIntegrity(context.Background(), filepath.Join(t.TempDir(), "absent.db"), VerifyQuick)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "corruptible.db")

	db, err := Open(ctx, dbPath, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, data TEXT);"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 0; i < 100; i++ {
		if _, err := db.Exec("INSERT INTO test (data) VALUES (hex(randomblob(100)));"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	db.Close()

	issues, err := VerifyIntegrity(ctx, dbPath, VerifyQuick)
	if err != nil {
		t.Fatalf("verify healthy db: %v", err)
	}
	if issues != nil {
		t.Fatalf("healthy db reported issues: %v", issues)
	}

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	garbage := make([]byte, 100)
	_, _ = rand.Read(garbage)
	_, err = f.WriteAt(garbage, 4096)
	f.Close()
	if err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	issues, err = VerifyIntegrity(ctx, dbPath, VerifyFull)
	if err != nil {
		t.Fatalf("verify corrupted db: %v", err)
	}
	if issues == nil {
		t.Fatal("corruption was not detected")
	}
	t.Logf("detected: %v", issues)
}
