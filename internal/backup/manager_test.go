// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/models"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testManager(t *testing.T, st *store.Store, retention int) *Manager {
	t.Helper()
	m, err := NewManager(st, config.BackupConfig{
		Enabled:   true,
		Dir:       t.TempDir(),
		Interval:  time.Hour,
		Retention: retention,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateAndRestoreBackup(t *testing.T) {
	src := openTestStore(t)
	account := &models.Account{
		ID:       "acct-1",
		Name:     "Owner",
		Email:    "owner@example.com",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := src.PutAccount(account); err != nil {
		t.Fatal(err)
	}

	m := testManager(t, src, 3)
	path, err := m.CreateBackup(context.Background())
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	dst := openTestStore(t)
	restore := &Manager{store: dst, cfg: m.cfg, now: time.Now}
	if err := restore.Restore(path); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := dst.GetAccount("acct-1")
	if err != nil {
		t.Fatalf("account missing after restore: %v", err)
	}
	if got.Email != "owner@example.com" {
		t.Errorf("restored email = %q", got.Email)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	st := openTestStore(t)
	m := testManager(t, st, 2)

	// Distinct timestamps so file names differ and sort chronologically.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		stamp := base.Add(time.Duration(i) * time.Minute)
		m.now = func() time.Time { return stamp }
		if _, err := m.CreateBackup(context.Background()); err != nil {
			t.Fatalf("CreateBackup %d: %v", i, err)
		}
	}

	if err := m.Prune(); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	paths, err := m.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("kept %d backups, want 2", len(paths))
	}
	// Newest first.
	if paths[0] < paths[1] {
		t.Errorf("backups not sorted newest first: %v", paths)
	}
}

func TestListBackupsIgnoresForeignFiles(t *testing.T) {
	st := openTestStore(t)
	m := testManager(t, st, 3)

	if _, err := m.CreateBackup(context.Background()); err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(m.cfg.Dir, "notes.txt")
	if err := os.WriteFile(stray, []byte("not a backup"), 0o600); err != nil {
		t.Fatal(err)
	}

	paths, err := m.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Fatalf("ListBackups returned %d paths, want 1", len(paths))
	}
}
