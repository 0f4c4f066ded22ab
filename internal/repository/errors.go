package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested fixture, zone, audience or order
// does not exist, including a write that references one.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a concurrent writer invalidated the
// transaction: a seat number was taken, the transaction could not be
// serialised, or it was chosen as a deadlock victim. Retrying is safe.
var ErrConflict = errors.New("concurrent update conflict")

const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// isConflict reports whether err is a Postgres error that a retry can resolve.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// isMissingReference reports whether err is a foreign key violation.
func isMissingReference(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}

// wrap adds op context, tags retryable failures with ErrConflict and
// writes referencing a missing row with ErrNotFound.
func wrap(op string, err error) error {
	if isMissingReference(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	if isConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
