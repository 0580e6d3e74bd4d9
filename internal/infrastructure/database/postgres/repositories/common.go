// Package repositories implements the domain persistence contracts on
// PostgreSQL via database/sql and lib/pq.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/lib/pq"
)

// queryExecutor abstracts sql.DB and sql.Tx so the same repository code runs
// inside and outside a transaction.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// uniqueViolation reports whether err is a Postgres unique-constraint
// violation; with a non-empty constraint it must also name that constraint.
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// prefsValue serializes a preference map for a JSONB column; nil and empty
// maps both store as the empty object.
func prefsValue(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// scanPrefs decodes a JSONB preference column; empty objects come back nil
// so freshly built and freshly loaded entities compare equal.
func scanPrefs(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil || len(m) == 0 {
		return nil
	}
	return m
}

// timePtr converts a nullable column to the *time.Time the entities carry.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
