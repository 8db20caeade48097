// Package postgres implements the pipeline and matching stores on
// PostgreSQL through database/sql and lib/pq.
package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("postgres: not found")

const (
	codeUniqueViolation   = "23505"
	codeUndefinedFunction = "42883"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool { return pqCode(err) == codeUniqueViolation }

// isUndefinedFunction reports a missing pg_trgm extension.
func isUndefinedFunction(err error) bool { return pqCode(err) == codeUndefinedFunction }

// nullString maps "" to SQL NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
