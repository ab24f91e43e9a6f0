package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"rentacar-backend/internal/domain"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeCheckViolation     = "23514"
)

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

func isExclusionViolation(err error) bool {
	return sqlState(err) == codeExclusionViolation
}

func isCheckViolation(err error) bool {
	return sqlState(err) == codeCheckViolation
}

// classify tags a raw driver error with a domain kind. Data and constraint
// errors (SQLSTATE classes 22 and 23) are validation failures; anything else,
// connection loss and timeouts included, is an external dependency failure.
// Errors that already carry a kind pass through unchanged.
func classify(err error, op string) error {
	if err == nil || domain.Kind(err) != nil {
		return err
	}
	if code := sqlState(err); strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23") {
		return fmt.Errorf("%w: %s: %w", domain.ErrValidation, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrExternalDependency, op, err)
}
