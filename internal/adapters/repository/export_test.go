package repository

import "context"

// TruncatePostgres empties the attendance table between test runs.
func TruncatePostgres(ctx context.Context, s *PostgresStore) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE attendance")
	return err
}
