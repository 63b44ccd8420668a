package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url  string
		want Driver
	}{
		{"", DriverSQLite},
		{"postgres://u:p@localhost:5432/db", DriverPostgres},
		{"postgresql://localhost/db", DriverPostgres},
		{"file:slotwise.db", DriverSQLite},
		{"/var/lib/slotwise.sqlite3", DriverSQLite},
		{"host=localhost dbname=slotwise", DriverPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDriver(tt.url))
		})
	}
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(errors.Join(errors.New("find booking"), pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("other")))
	assert.False(t, IsNoRows(nil))
}

type fakeTx struct {
	Executor
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error   { f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { f.rolledBack = true; return nil }

type fakeConn struct {
	Executor
	tx *fakeTx
}

func (c *fakeConn) BeginTx(context.Context) (Transaction, error) { return c.tx, nil }
func (c *fakeConn) Close() error                               { return nil }
func (c *fakeConn) Ping(context.Context) error                 { return nil }
func (c *fakeConn) Driver() Driver                             { return DriverSQLite }

func TestUnitOfWork_NestedJoinsOuter(t *testing.T) {
	tx := &fakeTx{}
	conn := &fakeConn{tx: tx}
	uow := NewUnitOfWork(conn)

	outer, err := uow.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Executor(tx), ExecutorFromContext(outer, conn))

	inner, err := uow.Begin(outer)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(inner))
	assert.False(t, tx.committed, "nested unit must not commit the outer transaction")

	require.NoError(t, uow.Commit(outer))
	assert.True(t, tx.committed)

	assert.Equal(t, Executor(conn), ExecutorFromContext(context.Background(), conn))
	assert.Error(t, uow.Commit(context.Background()))
}

func TestNewConnection_UnregisteredDriver(t *testing.T) {
	_, err := NewConnection(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
