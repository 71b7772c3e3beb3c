package dbx

import (
	"context"
	"fmt"
)

// LockKey takes a transaction-scoped Postgres advisory lock derived from
// key. The lock is released when the surrounding transaction ends, so tx
// must be a transaction handle.
func LockKey(ctx context.Context, tx DBTX, key string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}
