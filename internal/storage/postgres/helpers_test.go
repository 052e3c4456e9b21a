package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all memo rows and the usage ledger. It is defined
// in the postgres package so it can reach the pool, and exported so the
// postgres_test package can call it.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.pool.ExecContext(ctx, "TRUNCATE TABLE memos, organization_usage CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate memos: %w", err)
	}
	return nil
}

// WriteUnitsForTest reads the current period's write units for an organization.
func (s *Store) WriteUnitsForTest(ctx context.Context, organizationUUID string) (int, error) {
	var units int
	err := s.pool.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(write_units), 0) FROM organization_usage WHERE organization_uuid = $1
	`, organizationUUID).Scan(&units)
	return units, err
}
