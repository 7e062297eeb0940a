package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write loses a race on a unique
	// constraint, such as an attempt number or a first solve.
	ErrConflict = errors.New("conflicting concurrent write")

	// ErrAlreadyFinal is returned when a terminal write targets a submission
	// that already holds a terminal verdict.
	ErrAlreadyFinal = errors.New("submission already has a terminal verdict")

	// ErrCapacityReached is returned when a contest has no free seats.
	ErrCapacityReached = errors.New("contest is full")
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
// from either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
