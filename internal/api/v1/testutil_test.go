package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/callsim/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	sessions    domain.CallSessionRepository
	transcripts domain.TranscriptRepository
	scenarios   domain.ScenarioRepository
	metrics     domain.MetricRepository
}

func (m *mockDataStore) CallSessions() domain.CallSessionRepository { return m.sessions }
func (m *mockDataStore) Transcripts() domain.TranscriptRepository   { return m.transcripts }
func (m *mockDataStore) Scenarios() domain.ScenarioRepository       { return m.scenarios }
func (m *mockDataStore) Metrics() domain.MetricRepository           { return m.metrics }

// ---------------------------------------------------------------------------
// Mock CallSessionRepository
// ---------------------------------------------------------------------------

type mockCallSessionRepo struct {
	createFunc         func(ctx context.Context, s *domain.CallSession) error
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*domain.CallSession, error)
	finishFunc         func(ctx context.Context, s *domain.CallSession) error
	listByOperatorFunc func(ctx context.Context, operatorID string, limit, offset int) ([]*domain.CallSession, error)
}

func (m *mockCallSessionRepo) Create(ctx context.Context, s *domain.CallSession) error {
	return m.createFunc(ctx, s)
}

func (m *mockCallSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockCallSessionRepo) Finish(ctx context.Context, s *domain.CallSession) error {
	return m.finishFunc(ctx, s)
}

func (m *mockCallSessionRepo) ListByOperator(ctx context.Context, operatorID string, limit, offset int) ([]*domain.CallSession, error) {
	return m.listByOperatorFunc(ctx, operatorID, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock TranscriptRepository
// ---------------------------------------------------------------------------

type mockTranscriptRepo struct {
	createFunc        func(ctx context.Context, t *domain.Transcript) error
	listBySessionFunc func(ctx context.Context, sessionID uuid.UUID) ([]*domain.Transcript, error)
}

func (m *mockTranscriptRepo) Create(ctx context.Context, t *domain.Transcript) error {
	return m.createFunc(ctx, t)
}

func (m *mockTranscriptRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Transcript, error) {
	return m.listBySessionFunc(ctx, sessionID)
}

// ---------------------------------------------------------------------------
// Mock ScenarioRepository
// ---------------------------------------------------------------------------

type mockScenarioRepo struct {
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.Scenario, error)
	listFunc    func(ctx context.Context, difficulty domain.DifficultyLevel, limit, offset int) ([]*domain.Scenario, error)
	countFunc   func(ctx context.Context, difficulty domain.DifficultyLevel) (int64, error)
}

func (m *mockScenarioRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Scenario, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockScenarioRepo) List(ctx context.Context, difficulty domain.DifficultyLevel, limit, offset int) ([]*domain.Scenario, error) {
	return m.listFunc(ctx, difficulty, limit, offset)
}

func (m *mockScenarioRepo) Count(ctx context.Context, difficulty domain.DifficultyLevel) (int64, error) {
	return m.countFunc(ctx, difficulty)
}

// ---------------------------------------------------------------------------
// Mock MetricRepository
// ---------------------------------------------------------------------------

type mockMetricRepo struct {
	recordFunc        func(ctx context.Context, m *domain.PerformanceMetric) error
	listBySessionFunc func(ctx context.Context, sessionID uuid.UUID) ([]*domain.PerformanceMetric, error)
}

func (m *mockMetricRepo) Record(ctx context.Context, metric *domain.PerformanceMetric) error {
	return m.recordFunc(ctx, metric)
}

func (m *mockMetricRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.PerformanceMetric, error) {
	return m.listBySessionFunc(ctx, sessionID)
}

// ---------------------------------------------------------------------------
// Mock CallService
// ---------------------------------------------------------------------------

type mockCallService struct {
	startCallFunc func(ctx context.Context, operatorID string, scenarioID uuid.UUID) (*domain.CallSession, error)
	endCallFunc   func(ctx context.Context, sessionID uuid.UUID, notes, feedback string) (*domain.CallSession, error)
}

func (m *mockCallService) StartCall(ctx context.Context, operatorID string, scenarioID uuid.UUID) (*domain.CallSession, error) {
	return m.startCallFunc(ctx, operatorID, scenarioID)
}

func (m *mockCallService) EndCall(ctx context.Context, sessionID uuid.UUID, notes, feedback string) (*domain.CallSession, error) {
	return m.endCallFunc(ctx, sessionID, notes, feedback)
}
