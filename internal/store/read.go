package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weftlang/weft/internal/routes"
)

// SessionInfo summarizes one recorded session.
type SessionInfo struct {
	Token       string
	Description string
	StartedAt   time.Time
}

// Sessions lists all sessions, oldest first. UUIDv7 tokens sort by
// creation time, so token order and time order agree.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, description, started_at FROM sessions ORDER BY token
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var startedAt int64
		if err := rows.Scan(&info.Token, &info.Description, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.StartedAt = time.UnixMilli(startedAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Compiles returns a session's compile passes in order, each with its
// per-route outcomes.
func (s *Store) Compiles(ctx context.Context, token string) ([]CompileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_hash, exec_order, created_at
		FROM compiles WHERE session_token = ? ORDER BY id
	`, token)
	if err != nil {
		return nil, fmt.Errorf("list compiles: %w", err)
	}
	defer rows.Close()

	var out []CompileRecord
	for rows.Next() {
		var rec CompileRecord
		var execOrder string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ProgramHash, &execOrder, &createdAt); err != nil {
			return nil, fmt.Errorf("scan compile: %w", err)
		}
		if execOrder != "" {
			rec.ExecOrder = strings.Fields(execOrder)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Routes, err = s.compileRoutes(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) compileRoutes(ctx context.Context, compileID int64) ([]RouteResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route, ok, error FROM compile_routes
		WHERE compile_id = ? ORDER BY route
	`, compileID)
	if err != nil {
		return nil, fmt.Errorf("list compile routes: %w", err)
	}
	defer rows.Close()

	var out []RouteResult
	for rows.Next() {
		var rr RouteResult
		var name string
		var ok int
		if err := rows.Scan(&name, &ok, &rr.Err); err != nil {
			return nil, fmt.Errorf("scan compile route: %w", err)
		}
		if rr.Route, err = routes.Parse(name); err != nil {
			return nil, fmt.Errorf("scan compile route: %w", err)
		}
		rr.OK = ok != 0
		out = append(out, rr)
	}
	return out, rows.Err()
}

// Samples returns a session's recorded values for one strand, in
// insertion order.
func (s *Store) Samples(ctx context.Context, token, instance, output string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance, output, at_time, frame, value
		FROM samples
		WHERE session_token = ? AND instance = ? AND output = ?
		ORDER BY id
	`, token, instance, output)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.Instance, &sm.Output, &sm.Time, &sm.Frame, &sm.Value); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
