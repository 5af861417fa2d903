package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CallStatus string

const (
	CallStatusActive     CallStatus = "active"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusTerminated CallStatus = "terminated"
	CallStatusError      CallStatus = "error"
)

// ValidTransition checks if a call status transition is allowed.
// Allowed: active->completed, active->terminated, active->error. Everything else is final.
func (s CallStatus) ValidTransition(to CallStatus) bool {
	if s != CallStatusActive {
		return false
	}
	return to == CallStatusCompleted || to == CallStatusTerminated || to == CallStatusError
}

// IsTerminal reports whether no further transition can leave this status.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusCompleted || s == CallStatusTerminated || s == CallStatusError
}

// CallSession is the durable record of one training call.
type CallSession struct {
	ID         uuid.UUID      `json:"id"`
	OperatorID string         `json:"operator_id"`
	ScenarioID uuid.UUID      `json:"scenario_id"`
	Status     CallStatus     `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Finish moves an active session into a terminal status. DurationMs is
// derived from StartedAt so it always equals EndedAt - StartedAt.
func (s *CallSession) Finish(status CallStatus, endedAt time.Time) error {
	if !s.Status.ValidTransition(status) {
		return ErrInvalidTransition
	}
	duration := endedAt.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	s.Status = status
	s.EndedAt = &endedAt
	s.DurationMs = &duration
	s.UpdatedAt = endedAt
	return nil
}

type CallSessionRepository interface {
	Create(ctx context.Context, s *CallSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*CallSession, error)
	// Finish persists a terminal transition. It only applies to sessions that are
	// still active and returns ErrInvalidTransition otherwise.
	Finish(ctx context.Context, s *CallSession) error
	ListByOperator(ctx context.Context, operatorID string, limit, offset int) ([]*CallSession, error)
}
