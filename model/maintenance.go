package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RunMaintenance executes housekeeping tasks.
// Make sure tasks are idempotent and safe to run multiple times.
func RunMaintenance(ctx context.Context, s *Store, logger *slog.Logger) error {
	start := time.Now()
	logger.Info("maintenance: start")

	// Try to acquire a DB-level singleton lock (Postgres only).
	unlock, err := tryAcquireLock(ctx, s)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	// 1) Delete uploaded documents that have been extracted long ago
	n, err := pruneFiles(s.Config.UploadPath(), s.Config.UploadMaxAge())
	if err != nil {
		return fmt.Errorf("prune uploads: %w", err)
	}
	logger.Info("maintenance: uploads pruned", "count", n)

	// 2) Run VACUUM/ANALYZE depending on the DB engine
	if err := vacuumAnalyze(ctx, s); err != nil {
		return fmt.Errorf("vacuum/analyze: %w", err)
	}

	logger.Info("maintenance: done", "duration", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// --------------------------------------------------------------------
// DB locking (only relevant for Postgres, safe no-op for SQLite)
// --------------------------------------------------------------------

const maintenanceLockID = 91423002

func tryAcquireLock(ctx context.Context, s *Store) (func(), error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}

	switch s.db.Dialector.Name() {
	case "postgres":
		var got bool
		if err := sqlDB.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", maintenanceLockID).Scan(&got); err != nil {
			return nil, err
		}
		if !got {
			return nil, errors.New("another maintenance run is in progress")
		}
		return func() {
			_, _ = sqlDB.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", maintenanceLockID)
		}, nil
	default:
		// No locking available in SQLite
		return nil, nil
	}
}

// vacuumAnalyze runs database cleanup commands depending on DB engine.
func vacuumAnalyze(ctx context.Context, s *Store) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	switch s.db.Dialector.Name() {
	case "postgres":
		_, err = sqlDB.ExecContext(ctx, "VACUUM (ANALYZE)")
	case "sqlite":
		_, err = sqlDB.ExecContext(ctx, "VACUUM")
		if err == nil {
			_, _ = sqlDB.ExecContext(ctx, "PRAGMA optimize")
		}
	}
	return err
}

// pruneFiles deletes files older than the given duration in a directory and
// returns how many were removed. Does nothing if dir is empty or does not
// exist.
func pruneFiles(dir string, olderThan time.Duration) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
