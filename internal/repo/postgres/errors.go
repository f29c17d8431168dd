package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the store cares about.
const (
	codeUniqueViolation = "23505"
	codeFKViolation     = "23503"
	codeCheckViolation  = "23514"
	codeSerialization   = "40001"
	codeDeadlock        = "40P01"
)

func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	return pgErr, ok
}

// IsUniqueViolation reports a 23505, optionally narrowed to one constraint.
func IsUniqueViolation(err error, constraint string) bool {
	pgErr, ok := asPgError(err)
	if !ok || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsFKViolation reports a 23503, optionally narrowed to one constraint.
func IsFKViolation(err error, constraint string) bool {
	pgErr, ok := asPgError(err)
	if !ok || pgErr.Code != codeFKViolation {
		return false
	}
	return constraint == "" || strings.Contains(pgErr.ConstraintName, constraint)
}

func IsCheckViolation(err error) bool {
	pgErr, ok := asPgError(err)
	return ok && pgErr.Code == codeCheckViolation
}

// IsRetryable reports faults worth a bounded retry: serialization aborts,
// deadlocks, and connection-level failures. Constraint violations are
// deterministic and never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	if pgErr, ok := asPgError(err); ok {
		switch pgErr.Code {
		case codeSerialization, codeDeadlock:
			return true
		}
		// class 08: connection exceptions
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}
