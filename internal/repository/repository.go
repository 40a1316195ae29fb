package repository

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDatabase = errors.New("database error")
	// ErrConflict means the row changed under us or the lock could not be taken
	ErrConflict  = errors.New("concurrent update")
	ErrDuplicate = errors.New("duplicate record")
)

// Tx is a database transaction. *sqlx.Tx satisfies it.
type Tx interface {
	sqlx.ExtContext
	Commit() error
	Rollback() error
}

// Postgres error codes that mean "try again"
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqUniqueViolation      = "23505"
)

// classify wraps a driver error in the matching repository sentinel
func classify(err error) error {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case pqUniqueViolation:
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrDatabase, err)
}
