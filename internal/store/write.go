package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weftlang/weft/internal/routes"
)

// RouteResult is one backend's outcome in a compile pass.
type RouteResult struct {
	Route routes.Route
	OK    bool
	Err   string
}

// CompileRecord is one compile pass of a session.
type CompileRecord struct {
	ID          int64
	ProgramHash string
	ExecOrder   []string
	Routes      []RouteResult
	CreatedAt   time.Time
}

// Sample is one observed strand value.
type Sample struct {
	Instance string
	Output   string
	Time     float64
	Frame    int64
	Value    float64
}

// BeginSession registers a session token. Duplicate tokens are
// silently ignored so restarts with a fixed generator stay idempotent.
func (s *Store) BeginSession(ctx context.Context, token, description string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, started_at, description)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, startedAt.UnixMilli(), description)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// RecordCompile appends a compile pass with its per-route outcomes and
// returns the pass id.
func (s *Store) RecordCompile(ctx context.Context, token string, rec CompileRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("record compile: %w", err)
	}
	defer tx.Rollback()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO compiles (session_token, program_hash, exec_order, created_at)
		VALUES (?, ?, ?, ?)
	`, token, rec.ProgramHash, strings.Join(rec.ExecOrder, " "), createdAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("record compile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record compile: %w", err)
	}

	for _, rr := range rec.Routes {
		ok := 0
		if rr.OK {
			ok = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO compile_routes (compile_id, route, ok, error)
			VALUES (?, ?, ?, ?)
		`, id, rr.Route.String(), ok, rr.Err); err != nil {
			return 0, fmt.Errorf("record compile route: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("record compile: %w", err)
	}
	return id, nil
}

// RecordSample appends one observed strand value.
func (s *Store) RecordSample(ctx context.Context, token string, sample Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (session_token, instance, output, at_time, frame, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`, token, sample.Instance, sample.Output, sample.Time, sample.Frame, sample.Value)
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}
