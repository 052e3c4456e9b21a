package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// Dialect selects the placeholder syntax used for the tracking table.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Migration is one versioned schema change. Up and Down may contain several
// statements; both drivers execute multi-statement strings without arguments.
type Migration struct {
	Version uint
	Name    string
	Up      string
	Down    string
}

// MigrationManager applies versioned migrations in order and tracks the
// current version in a schema_migrations table. Each migration runs in its
// own transaction together with its version bookkeeping.
type MigrationManager struct {
	db         *sql.DB
	dialect    Dialect
	migrations []Migration
}

// NewMigrationManager creates a MigrationManager for the given database and
// migration set. The migrations are sorted by version; duplicate versions are
// rejected.
func NewMigrationManager(db *sql.DB, dialect Dialect, migrations []Migration) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return nil, fmt.Errorf("migrations: duplicate version %d", sorted[i].Version)
		}
	}

	mgr := &MigrationManager{
		db:         db,
		dialect:    dialect,
		migrations: sorted,
	}

	if err := mgr.ensureSchemaTable(); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}

	return mgr, nil
}

// ensureSchemaTable creates the schema_migrations table if it doesn't exist.
func (mgr *MigrationManager) ensureSchemaTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (mgr *MigrationManager) placeholder() string {
	if mgr.dialect == DialectPostgres {
		return "$1"
	}
	return "?"
}

// Up applies all pending migrations in ascending version order.
// Returns nil if already up-to-date.
func (mgr *MigrationManager) Up(ctx context.Context) error {
	currentVersion, err := mgr.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for _, m := range mgr.migrations {
		if m.Version <= currentVersion {
			continue
		}
		record := "INSERT INTO schema_migrations (version) VALUES (" + mgr.placeholder() + ")"
		if err := mgr.apply(ctx, m.Up, record, m.Version); err != nil {
			return fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down(ctx context.Context) error {
	currentVersion, err := mgr.Version(ctx)
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for i := len(mgr.migrations) - 1; i >= 0; i-- {
		m := mgr.migrations[i]
		if m.Version > currentVersion {
			continue
		}
		record := "DELETE FROM schema_migrations WHERE version = " + mgr.placeholder()
		if err := mgr.apply(ctx, m.Down, record, m.Version); err != nil {
			return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

func (mgr *MigrationManager) apply(ctx context.Context, stmt, record string, version uint) error {
	tx, err := mgr.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, record, int64(version)); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// Version returns the highest applied migration version.
// Returns (0, ErrNoMigration) when no migration has been applied.
func (mgr *MigrationManager) Version(ctx context.Context) (uint, error) {
	var version int64
	err := mgr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}

	if version == 0 {
		return 0, ErrNoMigration
	}

	return uint(version), nil
}

// Latest returns the highest version known to the manager.
func (mgr *MigrationManager) Latest() uint {
	if len(mgr.migrations) == 0 {
		return 0
	}
	return mgr.migrations[len(mgr.migrations)-1].Version
}
