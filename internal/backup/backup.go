// Package backup snapshots the SQLite store used for local deployments, with
// tiered retention and integrity verification.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// filePrefix names snapshot files; retention only considers files with it.
const filePrefix = "skald-"

// RetentionPolicy is how many snapshots to keep per age tier:
// hourly (<24h), daily (<7d), weekly (<30d) and monthly (<365d). Older
// snapshots are always removed.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

// DefaultRetention keeps a day of hourlies, a week of dailies, a month of
// weeklies and a year of monthlies.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Config locates the database and the snapshot directory.
type Config struct {
	DBPath    string
	Dir       string
	Retention RetentionPolicy
}

// Info describes a snapshot file.
type Info struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result describes a completed snapshot.
type Result struct {
	Info
	Duration time.Duration `json:"duration"`
	Removed  int           `json:"removed"`
}

// Snapshot writes a consistent copy of the database with VACUUM INTO,
// verifies it and applies the retention policy. Retention failures are
// logged and do not fail the snapshot.
func Snapshot(ctx context.Context, cfg Config, logger zerolog.Logger) (*Result, error) {
	start := time.Now()
	if cfg.DBPath == "" || cfg.Dir == "" {
		return nil, errors.New("backup: database path and backup directory are required")
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	dest := filepath.Join(cfg.Dir, filePrefix+start.UTC().Format("20060102-150405.000000")+".db")

	src, err := sql.Open("sqlite", "file:"+cfg.DBPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("backup: failed to open database: %w", err)
	}
	defer src.Close()

	if _, err := src.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("backup: vacuum into %s: %w", dest, err)
	}
	if err := verify(ctx, dest); err != nil {
		return nil, err
	}

	stat, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat snapshot: %w", err)
	}

	res := &Result{Info: Info{Path: dest, Timestamp: stat.ModTime(), Size: stat.Size()}}
	removed, err := ApplyRetention(cfg.Dir, cfg.Retention, time.Now())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to apply backup retention")
	}
	res.Removed = removed
	res.Duration = time.Since(start)

	logger.Info().Str("path", dest).Int64("size", res.Size).Int("removed", removed).
		Dur("elapsed", res.Duration).Msg("database snapshot written")
	return res, nil
}

// Restore verifies a snapshot and copies it over target. The store using
// target must be closed.
func Restore(ctx context.Context, snapshotPath, target string) error {
	if err := verify(ctx, snapshotPath); err != nil {
		return err
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: failed to open snapshot: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("backup: failed to create target: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: failed to copy snapshot: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("backup: failed to sync target: %w", err)
	}

	// A stale WAL next to the restored file would be replayed over it.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backup: failed to remove %s: %w", target+suffix, err)
		}
	}
	return verify(ctx, target)
}

// verify runs PRAGMA integrity_check on path.
func verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("backup: failed to open %s: %w", path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check of %s: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check of %s failed: %s", path, result)
	}
	return nil
}
