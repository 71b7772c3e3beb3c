package dbx

import (
	"context"
	"database/sql"
)

// Store gives services a plain handle for reads and a transaction runner
// for writes.
type Store interface {
	Conn() DBTX
	InTx(ctx context.Context, fn TxFunc) error
}

// SQLStore is the database/sql Store.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Conn() DBTX { return s.db }

func (s *SQLStore) InTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, s.db, nil, fn)
}
