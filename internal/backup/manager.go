// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package backup takes scheduled snapshots of the document store and
// prunes old ones. Backups are full Badger streams, safe to take while
// the server handles traffic.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/store"
)

const (
	filePrefix = "connectlify-"
	fileSuffix = ".backup"
	timeLayout = "20060102-150405"
)

// Manager creates and prunes store backups.
type Manager struct {
	store *store.Store
	cfg   config.BackupConfig
	now   func() time.Time
}

// NewManager creates a backup manager and ensures the backup directory
// exists.
func NewManager(st *store.Store, cfg config.BackupConfig) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir %q: %w", cfg.Dir, err)
	}
	return &Manager{store: st, cfg: cfg, now: time.Now}, nil
}

// CreateBackup writes a full snapshot to a timestamped file and returns
// its path. The snapshot is written to a temp file first so a crash never
// leaves a truncated backup behind.
func (m *Manager) CreateBackup(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := filePrefix + m.now().UTC().Format(timeLayout) + fileSuffix
	finalPath := filepath.Join(m.cfg.Dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}

	version, err := m.store.Backup(f)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("stream backup: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close backup file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize backup: %w", err)
	}

	info, _ := os.Stat(finalPath)
	var size int64
	if info != nil {
		size = info.Size()
	}
	logging.Info().
		Str("path", finalPath).
		Uint64("version", version).
		Int64("bytes", size).
		Msg("Backup created")
	return finalPath, nil
}

// Restore loads a backup file into the store. The server must not be
// handling traffic during a restore.
func (m *Manager) Restore(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup %q: %w", path, err)
	}
	defer f.Close()

	if err := m.store.Restore(f); err != nil {
		return fmt.Errorf("load backup %q: %w", path, err)
	}
	logging.Info().Str("path", path).Msg("Backup restored")
	return nil
}

// ListBackups returns existing backup paths, newest first. The timestamped
// names sort chronologically, so a name sort is a time sort.
func (m *Manager) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(m.cfg.Dir, name))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Prune deletes backups beyond the retention count, oldest first.
func (m *Manager) Prune() error {
	paths, err := m.ListBackups()
	if err != nil {
		return err
	}
	if len(paths) <= m.cfg.Retention {
		return nil
	}

	for _, path := range paths[m.cfg.Retention:] {
		if err := os.Remove(path); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Could not delete expired backup")
			continue
		}
		logging.Info().Str("path", path).Msg("Expired backup deleted")
	}
	return nil
}

// Serve implements suture.Service: takes a backup immediately, then on
// every interval tick, pruning after each run.
func (m *Manager) Serve(ctx context.Context) error {
	m.runOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) {
	if _, err := m.CreateBackup(ctx); err != nil {
		logging.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	if err := m.Prune(); err != nil {
		logging.Error().Err(err).Msg("Backup pruning failed")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Manager) String() string {
	return "backup-manager"
}
