package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/callsim/internal/domain"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	CallSessions() domain.CallSessionRepository
	Transcripts() domain.TranscriptRepository
	Scenarios() domain.ScenarioRepository
	Metrics() domain.MetricRepository
}

// CallService abstracts call lifecycle operations for handler testing.
// *call.Orchestrator satisfies this interface.
type CallService interface {
	StartCall(ctx context.Context, operatorID string, scenarioID uuid.UUID) (*domain.CallSession, error)
	EndCall(ctx context.Context, sessionID uuid.UUID, notes, feedback string) (*domain.CallSession, error)
}
