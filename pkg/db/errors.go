package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// IsUniqueViolation reports a unique-constraint failure, optionally limited to
// constraints whose name contains constraintName. SQLite messages are
// recognised too so repository tests behave like production.
func IsUniqueViolation(err error, constraintName string) bool {
	return isViolation(err, pgUniqueViolation, constraintName, "duplicate key value", "UNIQUE constraint failed")
}

// IsCheckViolation reports a CHECK-constraint failure, such as stock going
// negative.
func IsCheckViolation(err error, constraintName string) bool {
	return isViolation(err, pgCheckViolation, constraintName, "violates check constraint", "CHECK constraint failed")
}

func isViolation(err error, sqlState, constraintName string, markers ...string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.PostgresDetails(err); ok {
		return pg.Code == sqlState && (constraintName == "" || strings.Contains(pg.Constraint, constraintName))
	}
	msg := err.Error()
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return constraintName == "" || strings.Contains(msg, constraintName)
		}
	}
	return false
}
