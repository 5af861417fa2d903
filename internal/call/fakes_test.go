package call_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/callsim/internal/call"
	"github.com/gosuda/callsim/internal/domain"
)

// ---------------------------------------------------------------------------
// fakeChannel
// ---------------------------------------------------------------------------

type fakeChannel struct {
	in   chan []byte
	done chan struct{}

	mu          sync.Mutex
	sent        []call.OutboundMessage
	closed      bool
	closeReason string
	sendErr     error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:   make(chan []byte, 32),
		done: make(chan struct{}),
	}
}

func (c *fakeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, call.ErrChannelClosed
		}
		return data, nil
	case <-c.done:
		return nil, call.ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeChannel) Send(_ context.Context, msg call.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return call.ErrChannelClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeReason = reason
		close(c.done)
	}
	return nil
}

func (c *fakeChannel) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeChannel) pushRaw(data string) {
	c.in <- []byte(data)
}

// hangUp simulates the client going away once queued frames are read.
func (c *fakeChannel) hangUp() {
	close(c.in)
}

func (c *fakeChannel) messages() []call.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]call.OutboundMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func messageTypes(msgs []call.OutboundMessage) []call.MessageType {
	types := make([]call.MessageType, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.MessageType())
	}
	return types
}

func transcriptUpdates(msgs []call.OutboundMessage) []call.TranscriptUpdate {
	var out []call.TranscriptUpdate
	for _, m := range msgs {
		if tu, ok := m.(call.TranscriptUpdate); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memSessions struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]domain.CallSession
	finishErr error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[uuid.UUID]domain.CallSession)}
}

func (r *memSessions) Create(_ context.Context, s *domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memSessions) GetByID(_ context.Context, id uuid.UUID) (*domain.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *memSessions) Finish(_ context.Context, s *domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishErr != nil {
		return r.finishErr
	}
	cur, ok := r.sessions[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != domain.CallStatusActive {
		return domain.ErrInvalidTransition
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *memSessions) ListByOperator(_ context.Context, operatorID string, limit, offset int) ([]*domain.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CallSession
	for _, s := range r.sessions {
		if s.OperatorID == operatorID {
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSessions) get(id uuid.UUID) domain.CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

type memTranscripts struct {
	mu      sync.Mutex
	entries []domain.Transcript
	failFn  func(t *domain.Transcript) error
}

func (r *memTranscripts) Create(_ context.Context, t *domain.Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFn != nil {
		if err := r.failFn(t); err != nil {
			return err
		}
	}
	r.entries = append(r.entries, *t)
	return nil
}

func (r *memTranscripts) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*domain.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transcript
	for i := range r.entries {
		if r.entries[i].SessionID == sessionID {
			t := r.entries[i]
			out = append(out, &t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampMs < out[j].TimestampMs })
	return out, nil
}

func (r *memTranscripts) all() []domain.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Transcript, len(r.entries))
	copy(out, r.entries)
	return out
}

type memEntities struct {
	mu      sync.Mutex
	entries []domain.ExtractedEntity
	failFn  func(e *domain.ExtractedEntity) error
}

func (r *memEntities) Create(_ context.Context, e *domain.ExtractedEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFn != nil {
		if err := r.failFn(e); err != nil {
			return err
		}
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memEntities) ListByTranscript(_ context.Context, transcriptID uuid.UUID) ([]*domain.ExtractedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ExtractedEntity
	for i := range r.entries {
		if r.entries[i].TranscriptID == transcriptID {
			e := r.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *memEntities) CountBySession(_ context.Context, _ uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries)), nil
}

type memMetrics struct {
	mu      sync.Mutex
	entries []domain.PerformanceMetric
}

func (r *memMetrics) Record(_ context.Context, m *domain.PerformanceMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *m)
	return nil
}

func (r *memMetrics) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*domain.PerformanceMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PerformanceMetric
	for i := range r.entries {
		if r.entries[i].SessionID == sessionID {
			m := r.entries[i]
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r *memMetrics) byName() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64)
	for _, m := range r.entries {
		out[m.MetricName] = m.MetricValue
	}
	return out
}

type memScenarios struct {
	scenarios map[uuid.UUID]*domain.Scenario
}

func (r *memScenarios) GetByID(_ context.Context, id uuid.UUID) (*domain.Scenario, error) {
	s, ok := r.scenarios[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (r *memScenarios) List(_ context.Context, _ domain.DifficultyLevel, _, _ int) ([]*domain.Scenario, error) {
	out := make([]*domain.Scenario, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		out = append(out, s)
	}
	return out, nil
}

func (r *memScenarios) Count(_ context.Context, _ domain.DifficultyLevel) (int64, error) {
	return int64(len(r.scenarios)), nil
}

// recordingContexts wraps a context store, remembering the emotional state
// after every successful update. The update numbered failOn (1-based) fails.
type recordingContexts struct {
	domain.ContextStore

	mu      sync.Mutex
	updates int
	failOn  int
	states  []domain.EmotionalState
}

func (s *recordingContexts) Update(ctx context.Context, id uuid.UUID, mutate domain.ContextMutator) (*domain.SessionContext, error) {
	s.mu.Lock()
	s.updates++
	n := s.updates
	s.mu.Unlock()

	if n == s.failOn {
		return nil, errors.New("context store unavailable")
	}
	c, err := s.ContextStore.Update(ctx, id, mutate)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.states = append(s.states, c.CurrentEmotionalState)
	s.mu.Unlock()
	return c, nil
}

func (s *recordingContexts) recorded() []domain.EmotionalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.states)
}

// ---------------------------------------------------------------------------
// Collaborator stubs
// ---------------------------------------------------------------------------

type stubGenerator struct {
	mu       sync.Mutex
	requests []call.ReplyRequest
	fn       func(ctx context.Context, req call.ReplyRequest) (call.Reply, error)
}

func (g *stubGenerator) GenerateReply(ctx context.Context, req call.ReplyRequest) (call.Reply, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.fn == nil {
		return call.Reply{Text: "There's a fire in my kitchen.", Confidence: 0.9}, nil
	}
	return g.fn(ctx, req)
}

func (g *stubGenerator) lastRequest() call.ReplyRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type stubSynthesizer struct {
	fn func(ctx context.Context, text string, state domain.EmotionalState) (call.Speech, error)
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, state domain.EmotionalState) (call.Speech, error) {
	if s.fn == nil {
		return call.Speech{AudioBase64: "UklGRg==", DurationMs: 1200}, nil
	}
	return s.fn(ctx, text, state)
}

type stubExtractor struct {
	fn func(ctx context.Context, text string) ([]call.EntityCandidate, error)
}

func (x *stubExtractor) ExtractEntities(ctx context.Context, text string) ([]call.EntityCandidate, error) {
	if x.fn == nil {
		return nil, nil
	}
	return x.fn(ctx, text)
}

// ---------------------------------------------------------------------------
// harness wires a complete orchestrator over in-memory dependencies.
// ---------------------------------------------------------------------------

type harness struct {
	sessions    *memSessions
	transcripts *memTranscripts
	entities    *memEntities
	metrics     *memMetrics
	scenarios   *memScenarios
	contexts    *call.MemoryContextStore
	registry    *call.Registry
	generator   *stubGenerator
	synthesizer *stubSynthesizer
	extractor   *stubExtractor
	engine      *call.Engine
	orch        *call.Orchestrator
	scenario    *domain.Scenario
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	scenario := &domain.Scenario{
		ID:          uuid.New(),
		Name:        "House Fire",
		Description: "Kitchen fire in a two-story house.",
		CallerProfile: domain.CallerProfile{
			Name:                  "Sam",
			Age:                   42,
			InitialEmotionalState: domain.EmotionCalm,
		},
		Script: domain.ScenarioScript{
			InitialSituation: "smoke coming from the kitchen",
			EmergencyType:    "fire",
		},
		DifficultyLevel: domain.DifficultyEasy,
		IsActive:        true,
	}

	h := &harness{
		sessions:    newMemSessions(),
		transcripts: &memTranscripts{},
		entities:    &memEntities{},
		metrics:     &memMetrics{},
		scenarios:   &memScenarios{scenarios: map[uuid.UUID]*domain.Scenario{scenario.ID: scenario}},
		contexts:    call.NewMemoryContextStore(time.Hour),
		registry:    call.NewRegistry(),
		generator:   &stubGenerator{},
		synthesizer: &stubSynthesizer{},
		extractor:   &stubExtractor{},
		scenario:    scenario,
	}

	pipeline := call.NewEntityPipeline(h.extractor, h.entities, time.Second)
	h.engine = call.NewEngine(h.contexts, h.transcripts, pipeline, h.generator, h.synthesizer, h.registry,
		call.Timeouts{Generate: time.Second, Synthesize: time.Second})
	h.orch = call.NewOrchestrator(h.sessions, h.scenarios, h.entities, h.metrics, h.contexts, h.registry, h.engine)

	return h
}

// startCall opens a call and returns its session id.
func (h *harness) startCall(t *testing.T) uuid.UUID {
	t.Helper()
	s, err := h.orch.StartCall(context.Background(), "op-1", h.scenario.ID)
	require.NoError(t, err)
	return s.ID
}

// connect registers a fake channel directly, bypassing Serve.
func (h *harness) connect(id uuid.UUID) *fakeChannel {
	ch := newFakeChannel()
	h.registry.Register(id, ch)
	return ch
}
