// Package usage tracks billable requests as an append-only log and answers
// windowed count queries over it.
//
// Counts are always derived from the log, never kept as running totals; resetting
// usage at a cycle boundary is just querying a different window, which is what
// keeps the cycle advancer trivially idempotent.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Counter answers how many billable requests an organization made in a window.
// Both bounds are inclusive.
type Counter interface {
	CountBillableRequests(ctx context.Context, orgID int64, start, end time.Time) (int64, error)
}

// Recorder appends billable requests to the usage log.
type Recorder interface {
	RecordRequest(ctx context.Context, orgID int64, at time.Time) error
}

// PostgresStore implements Counter and Recorder over the usage_log table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CountBillableRequests counts requests in [start, end] for an organization
func (s *PostgresStore) CountBillableRequests(ctx context.Context, orgID int64, start, end time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM usage_log
		WHERE organization_id = $1 AND requested_at >= $2 AND requested_at < $3
	`
	// The end bound is an inclusive calendar date; extend it to the end of that day.
	var count int64
	err := s.db.QueryRowContext(ctx, query, orgID, start, end.AddDate(0, 0, 1)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count billable requests: %w", err)
	}
	return count, nil
}

// RecordRequest appends one billable request to the log
func (s *PostgresStore) RecordRequest(ctx context.Context, orgID int64, at time.Time) error {
	query := `
		INSERT INTO usage_log (organization_id, requested_at)
		VALUES ($1, $2)
	`
	if _, err := s.db.ExecContext(ctx, query, orgID, at); err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}
