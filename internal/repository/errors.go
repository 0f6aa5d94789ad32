// Package repository holds the SQL access layer. Every query filters out
// soft-deleted rows explicitly with an is_deleted predicate, and every write
// receives the acting user as an Actor argument.
//
// Repositories return the sentinel errors below, wrapped with context where
// useful. Services translate them into apperr codes.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert or update violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// ErrNoRowsAffected is returned when a write that must change a row did not.
var ErrNoRowsAffected = errors.New("no rows affected")

// ErrInsufficientStock is returned by the guarded stock decrement.
var ErrInsufficientStock = errors.New("insufficient stock")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
