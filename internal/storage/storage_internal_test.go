package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?"
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3", rebind(DialectPostgres, q))
	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, "SELECT 1", rebind(DialectPostgres, "SELECT 1"))
}

func TestMapErrorTriggerMessages(t *testing.T) {
	assert.ErrorIs(t, mapError(errors.New("audit log entries cannot be deleted")), ErrForbidden)
	assert.ErrorIs(t, mapError(errors.New("audit log entries are immutable")), ErrImmutableRecord)
	assert.ErrorIs(t, mapError(errors.New("UNIQUE constraint failed: audit_log.sequence_number")), ErrAlreadyExists)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, mapError(plain))
	assert.NoError(t, mapError(nil))
}

func TestPageClause(t *testing.T) {
	_, args := Page{}.clause()
	assert.Equal(t, []any{defaultPageSize, 0}, args)

	_, args = Page{Limit: 5000, Offset: -3}.clause()
	assert.Equal(t, []any{maxPageSize, 0}, args)
}

func TestNextMigrationNumber(t *testing.T) {
	assert.Equal(t, "001", nextMigrationNumber(nil))
	assert.Equal(t, "003", nextMigrationNumber([]string{"001_init.up.sql", "002_more.up.sql"}))
}
