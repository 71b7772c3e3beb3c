// Package memstore is an in-memory RepositoryManager and dbx.Store used by
// service tests. Transactions are serialized and roll back by restoring a
// snapshot.
package memstore

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/models"
	"github.com/dmitrijs2005/calsync/internal/repositories/conflicts"
	"github.com/dmitrijs2005/calsync/internal/repositories/credentials"
	"github.com/dmitrijs2005/calsync/internal/repositories/integrations"
)

type data struct {
	integrations map[string]models.Integration
	credentials  map[string][]byte
	conflicts    map[string]models.SyncConflict
	audit        []models.ResolutionRecord
}

func (d *data) clone() *data {
	c := &data{
		integrations: maps.Clone(d.integrations),
		credentials:  make(map[string][]byte, len(d.credentials)),
		conflicts:    maps.Clone(d.conflicts),
		audit:        slices.Clone(d.audit),
	}
	for k, v := range d.credentials {
		c.credentials[k] = slices.Clone(v)
	}
	return c
}

// Manager holds all in-memory tables.
type Manager struct {
	mu   sync.Mutex
	txMu sync.Mutex
	d    *data
}

var _ dbx.Store = (*Manager)(nil)

func New() *Manager {
	return &Manager{d: &data{
		integrations: map[string]models.Integration{},
		credentials:  map[string][]byte{},
		conflicts:    map[string]models.SyncConflict{},
	}}
}

// nopConn satisfies dbx.DBTX for code that issues statements outside the
// repositories, such as advisory locks.
type nopConn struct{}

func (nopConn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nopResult{}, nil
}

func (nopConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("memstore: raw queries are not supported")
}

func (nopConn) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

type nopResult struct{}

func (nopResult) LastInsertId() (int64, error) { return 0, nil }
func (nopResult) RowsAffected() (int64, error) { return 0, nil }

func (m *Manager) Conn() dbx.DBTX { return nopConn{} }

// InTx runs fn exclusively; if fn fails every table is restored.
func (m *Manager) InTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.d.clone()
	m.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			m.restore(snapshot)
			panic(p)
		}
		if err != nil {
			m.restore(snapshot)
		}
	}()
	return fn(ctx, nopConn{})
}

func (m *Manager) restore(d *data) {
	m.mu.Lock()
	m.d = d
	m.mu.Unlock()
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Integrations(dbx.DBTX) integrations.Repository { return &integrationRepo{m: m} }

func (m *Manager) Credentials(dbx.DBTX) credentials.Repository { return &credentialRepo{m: m} }

func (m *Manager) Conflicts(dbx.DBTX) conflicts.Repository { return &conflictRepo{m: m} }
