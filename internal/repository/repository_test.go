package repository

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// newMock returns a sqlmock-backed *sql.DB and pins the repository clock.
func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	prev := nowUTC
	nowUTC = func() time.Time { return fixedNow }
	t.Cleanup(func() {
		nowUTC = prev
		_ = db.Close()
	})
	return db, mock
}

var auditCols = []string{"is_deleted", "created_at", "created_by_id", "updated_at", "updated_by_id", "deleted_at", "deleted_by_id"}

func withAudit(cols ...string) []string { return append(cols, auditCols...) }

func auditVals(vals ...driver.Value) []driver.Value {
	return append(vals, false, fixedNow, nil, nil, nil, nil, nil)
}
