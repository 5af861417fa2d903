package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/callsim/internal/domain"
)

type CallSessionRepo struct {
	pool *pgxpool.Pool
}

func NewCallSessionRepo(pool *pgxpool.Pool) *CallSessionRepo {
	return &CallSessionRepo{pool: pool}
}

func (r *CallSessionRepo) Create(ctx context.Context, s *domain.CallSession) error {
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("callSessionRepo.Create: marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO call_sessions (id, operator_id, scenario_id, status, started_at, ended_at, duration_ms, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.OperatorID, s.ScenarioID, s.Status, s.StartedAt, s.EndedAt, s.DurationMs,
		metadata, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("callSessionRepo.Create: %w", err)
	}

	return nil
}

func (r *CallSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	var s domain.CallSession
	var metadata []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, operator_id, scenario_id, status, started_at, ended_at, duration_ms, metadata, created_at, updated_at
		 FROM call_sessions WHERE id = $1`,
		id,
	).Scan(
		&s.ID, &s.OperatorID, &s.ScenarioID, &s.Status, &s.StartedAt, &s.EndedAt, &s.DurationMs,
		&metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("callSessionRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("callSessionRepo.GetByID: %w", err)
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &s.Metadata)
		if err != nil {
			return nil, fmt.Errorf("callSessionRepo.GetByID: unmarshal metadata: %w", err)
		}
	}

	return &s, nil
}

// Finish writes a terminal transition. The update is guarded on the stored
// status so a session that already ended is never overwritten.
func (r *CallSessionRepo) Finish(ctx context.Context, s *domain.CallSession) error {
	if !s.Status.IsTerminal() {
		return fmt.Errorf("callSessionRepo.Finish: status %q: %w", s.Status, domain.ErrInvalidTransition)
	}

	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("callSessionRepo.Finish: marshal metadata: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE call_sessions SET status = $1, ended_at = $2, duration_ms = $3, metadata = $4, updated_at = now()
		 WHERE id = $5 AND status = 'active'`,
		s.Status, s.EndedAt, s.DurationMs, metadata, s.ID,
	)
	if err != nil {
		return fmt.Errorf("callSessionRepo.Finish: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM call_sessions WHERE id = $1)`, s.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("callSessionRepo.Finish: %w", err)
	}
	if !exists {
		return fmt.Errorf("callSessionRepo.Finish: %w", domain.ErrNotFound)
	}

	return fmt.Errorf("callSessionRepo.Finish: %w", domain.ErrInvalidTransition)
}

func (r *CallSessionRepo) ListByOperator(ctx context.Context, operatorID string, limit, offset int) ([]*domain.CallSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, operator_id, scenario_id, status, started_at, ended_at, duration_ms, metadata, created_at, updated_at
		 FROM call_sessions WHERE operator_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`,
		operatorID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("callSessionRepo.ListByOperator: %w", err)
	}
	defer rows.Close()

	return scanCallSessions(rows, "callSessionRepo.ListByOperator")
}

func scanCallSessions(rows pgx.Rows, caller string) ([]*domain.CallSession, error) {
	var sessions []*domain.CallSession
	for rows.Next() {
		var s domain.CallSession
		var metadata []byte
		if err := rows.Scan(
			&s.ID, &s.OperatorID, &s.ScenarioID, &s.Status, &s.StartedAt, &s.EndedAt, &s.DurationMs,
			&metadata, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
				return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
			}
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return sessions, nil
}
