package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gosuda/callsim/internal/domain"
)

// TurnState is a stage of one turn. A turn moves through the states in
// declaration order; greetings start at StateContextUpdated.
type TurnState string

const (
	StateReceived               TurnState = "RECEIVED"
	StatePersistedInput         TurnState = "PERSISTED_INPUT"
	StateEntitiesExtractedInput TurnState = "ENTITIES_EXTRACTED_INPUT"
	StateContextUpdated         TurnState = "CONTEXT_UPDATED"
	StateReplyGenerated         TurnState = "REPLY_GENERATED"
	StateSpeechSynthesized      TurnState = "SPEECH_SYNTHESIZED"
	StatePersistedReply         TurnState = "PERSISTED_REPLY"
	StateEntitiesExtractedReply TurnState = "ENTITIES_EXTRACTED_REPLY"
	StateReplyContextUpdated    TurnState = "REPLY_CONTEXT_UPDATED"
	StateEmitted                TurnState = "EMITTED"
	StateDone                   TurnState = "DONE"
)

// StepOutcome is the result of running one step.
type StepOutcome int

const (
	StepOK StepOutcome = iota
	StepDegraded
	StepFatal
)

func (o StepOutcome) String() string {
	switch o {
	case StepOK:
		return "ok"
	case StepDegraded:
		return "degraded"
	case StepFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type onFailure int

const (
	abortTurn onFailure = iota
	continueTurn
)

// stepPolicies decides, for the state a step would reach, whether its failure
// ends the turn. Steps that continue leave a substitute result on the turn.
//
//nolint:gochecknoglobals // failure policy table
var stepPolicies = map[TurnState]onFailure{
	StatePersistedInput:         abortTurn,    // never fabricate operator speech
	StateEntitiesExtractedInput: continueTurn, // empty entity set
	StateContextUpdated:         abortTurn,
	StateReplyGenerated:         continueTurn, // fallback utterance
	StateSpeechSynthesized:      continueTurn, // no audio_chunk
	StatePersistedReply:         continueTurn, // persistence_failed flag, reply still emitted
	StateEntitiesExtractedReply: continueTurn,
	StateReplyContextUpdated:    continueTurn, // reply is already committed to the client
	StateEmitted:                abortTurn,    // channel closed
}

const (
	operatorConfidence     = 0.95
	defaultReplyConfidence = 0.9
	// replyDelayMs offsets a reply from the operator line it answers.
	replyDelayMs = 1000
	// historyWindow is how many recent turns the generator sees.
	historyWindow = 10
)

// Timeouts bound each collaborator call made by a turn.
type Timeouts struct {
	Generate   time.Duration
	Synthesize time.Duration
}

// Emitter delivers outbound frames to a session. Send returns ErrChannelClosed
// when the session is no longer connected and swallows other delivery failures.
type Emitter interface {
	Send(ctx context.Context, sessionID uuid.UUID, msg OutboundMessage) error
}

// Utterance is the input of one turn. A greeting has no operator text; the
// caller speaks first.
type Utterance struct {
	Text        string
	TimestampMs int64
	Greeting    bool
}

// TurnResult summarizes a finished turn.
type TurnResult struct {
	State          TurnState
	Degraded       []TurnState
	ReplyText      string
	Fallback       bool
	EmotionalState domain.EmotionalState
}

// Engine runs turns: persist the operator line, extract entities, update the
// context, generate and voice a caller reply, persist it, and emit everything
// to the client in a fixed order.
type Engine struct {
	store       domain.ContextStore
	transcripts TranscriptSink
	entities    *EntityPipeline
	generator   Generator
	synthesizer Synthesizer
	emitter     Emitter
	timeouts    Timeouts
	now         func() time.Time

	tracer   trace.Tracer
	turns    metric.Int64Counter
	degraded metric.Int64Counter
}

func NewEngine(
	store domain.ContextStore,
	transcripts TranscriptSink,
	entities *EntityPipeline,
	generator Generator,
	synthesizer Synthesizer,
	emitter Emitter,
	timeouts Timeouts,
	opts ...EngineOption,
) *Engine {
	o := newEngineOptions(opts)
	meter := o.meterProvider.Meter(scopeName)

	return &Engine{
		store:       store,
		transcripts: transcripts,
		entities:    entities,
		generator:   generator,
		synthesizer: synthesizer,
		emitter:     emitter,
		timeouts:    timeouts,
		now:         time.Now,
		tracer:      o.tracerProvider.Tracer(scopeName),
		turns:       newCounter(meter, "callsim.turns", "Turns run by the turn engine."),
		degraded:    newCounter(meter, "callsim.turn_steps_degraded", "Turn steps that failed and continued with a substitute."),
	}
}

// turn carries the working state of one Run.
type turn struct {
	sessionID uuid.UUID
	in        Utterance
	state     TurnState
	degraded  []TurnState
	lastErr   error

	context          *domain.SessionContext
	operator         *domain.Transcript
	operatorEntities []*domain.ExtractedEntity
	forcePanic       bool

	replyID        uuid.UUID
	replyTimestamp int64
	replyText      string
	confidence     float64
	fallback       bool
	nextState      domain.EmotionalState
	speech         *Speech
	persistFailed  bool
	replyEntities  []*domain.ExtractedEntity
}

// Run executes one turn for a session. The turn runs on a context detached
// from ctx's cancellation, so a client disconnect does not interrupt
// persistence; frames for a departed client are dropped by the emitter.
//
// The returned error is non-nil only for a fatal step. Fatal failures before
// emission are reported to the client as PROCESSING_ERROR.
func (e *Engine) Run(ctx context.Context, sessionID uuid.UUID, in Utterance) (*TurnResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := e.tracer.Start(ctx, "turn", trace.WithAttributes(
		attribute.String("session_id", sessionID.String()),
		attribute.Bool("greeting", in.Greeting),
	))
	defer span.End()

	t := &turn{
		sessionID: sessionID,
		in:        in,
		state:     StateReceived,
		replyID:   uuid.New(),
	}
	if !in.Greeting {
		t.replyTimestamp = in.TimestampMs + replyDelayMs
	}

	e.turns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("greeting", in.Greeting)))

	if in.Greeting {
		c, err := e.store.Get(ctx, sessionID)
		if err != nil {
			return e.abort(ctx, t, fmt.Errorf("call.Engine.Run: load context: %w", err))
		}
		t.context = c
		t.state = StateContextUpdated
	} else {
		if e.step(ctx, t, StatePersistedInput, e.persistInput) == StepFatal {
			return e.abort(ctx, t, fmt.Errorf("call.Engine.Run: %w", t.lastErr))
		}
		e.step(ctx, t, StateEntitiesExtractedInput, e.extractInput)
		if e.step(ctx, t, StateContextUpdated, e.updateInputContext) == StepFatal {
			return e.abort(ctx, t, fmt.Errorf("call.Engine.Run: %w", t.lastErr))
		}
	}

	e.step(ctx, t, StateReplyGenerated, e.generateReply)
	e.step(ctx, t, StateSpeechSynthesized, e.synthesize)
	e.step(ctx, t, StatePersistedReply, e.persistReply)
	e.step(ctx, t, StateEntitiesExtractedReply, e.extractReply)
	e.step(ctx, t, StateReplyContextUpdated, e.updateReplyContext)

	if e.step(ctx, t, StateEmitted, e.emit) == StepFatal {
		span.SetStatus(codes.Error, t.lastErr.Error())
		return t.result(), fmt.Errorf("call.Engine.Run: %w", t.lastErr)
	}

	t.state = StateDone
	return t.result(), nil
}

func (t *turn) result() *TurnResult {
	return &TurnResult{
		State:          t.state,
		Degraded:       t.degraded,
		ReplyText:      t.replyText,
		Fallback:       t.fallback,
		EmotionalState: t.nextState,
	}
}

// abort ends a turn before anything was emitted and tells the client.
func (e *Engine) abort(ctx context.Context, t *turn, err error) (*TurnResult, error) {
	trace.SpanFromContext(ctx).SetStatus(codes.Error, err.Error())
	log.Error().Err(err).
		Str("session_id", t.sessionID.String()).
		Str("state", string(t.state)).
		Msg("turn aborted")

	msg := NewErrorMessage(t.sessionID, CodeProcessingError, "failed to process utterance")
	if sendErr := e.emitter.Send(ctx, t.sessionID, msg); sendErr != nil && errors.Is(sendErr, ErrChannelClosed) {
		err = errors.Join(err, sendErr)
	}
	return t.result(), err
}

type stepFunc func(ctx context.Context, t *turn) error

// step runs fn and applies the failure policy for next. The turn always ends
// up in next unless the step was fatal.
func (e *Engine) step(ctx context.Context, t *turn, next TurnState, fn stepFunc) StepOutcome {
	ctx, span := e.tracer.Start(ctx, strings.ToLower(string(next)))
	defer span.End()

	err := fn(ctx, t)
	if err == nil {
		t.state = next
		return StepOK
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if stepPolicies[next] == abortTurn {
		t.lastErr = err
		return StepFatal
	}

	log.Warn().Err(err).
		Str("session_id", t.sessionID.String()).
		Str("step", string(next)).
		Msg("turn step degraded")
	e.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(next))))

	t.degraded = append(t.degraded, next)
	t.state = next
	return StepDegraded
}

func (e *Engine) persistInput(ctx context.Context, t *turn) error {
	tr := &domain.Transcript{
		ID:              uuid.New(),
		SessionID:       t.sessionID,
		TimestampMs:     t.in.TimestampMs,
		Speaker:         domain.SpeakerOperator,
		Text:            t.in.Text,
		ConfidenceScore: operatorConfidence,
		CreatedAt:       e.now().UTC(),
	}
	if err := e.transcripts.Create(ctx, tr); err != nil {
		return fmt.Errorf("persist operator transcript: %w", err)
	}
	t.operator = tr
	return nil
}

func (e *Engine) extractInput(ctx context.Context, t *turn) error {
	entities, err := e.entities.Process(ctx, t.operator.ID, t.in.Text)
	if err != nil {
		return err
	}
	t.operatorEntities = entities
	return nil
}

func (e *Engine) updateInputContext(ctx context.Context, t *turn) error {
	t.forcePanic = OperatorForcesPanic(t.in.Text)
	now := e.now().UTC()

	c, err := e.store.Update(ctx, t.sessionID, func(c *domain.SessionContext) error {
		c.AppendTurn(domain.Turn{
			Role:       domain.RoleOperator,
			Text:       t.in.Text,
			OccurredAt: now,
			Metadata: map[string]any{
				"transcript_id": t.operator.ID.String(),
				"timestamp_ms":  t.in.TimestampMs,
			},
		})
		for _, ent := range t.operatorEntities {
			c.AddEntity(ent.EntityType, ent.EntityValue)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append operator turn: %w", err)
	}
	t.context = c
	return nil
}

// generateReply asks for the caller's line. The stored emotional state is
// only written by the reply context update; a forced panic is applied here.
func (e *Engine) generateReply(ctx context.Context, t *turn) error {
	current := t.context.CurrentEmotionalState
	if t.forcePanic {
		current = domain.EmotionPanicked
	}
	defer func() { t.nextState = t.resolveState(current) }()

	req := ReplyRequest{
		History:       t.context.RecentHistory(historyWindow),
		CallerProfile: t.context.CallerProfile,
		Scenario:      t.context.Scenario,
		CurrentState:  current,
	}

	genCtx, cancel := context.WithTimeout(ctx, e.timeouts.Generate)
	defer cancel()

	reply, err := e.generator.GenerateReply(genCtx, req)
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = fmt.Errorf("empty reply: %w", ErrCollaborator)
	}
	if err != nil {
		t.replyText = FallbackUtterance(current)
		t.confidence = fallbackConfidence
		t.fallback = true
		return fmt.Errorf("generate reply: %w", err)
	}

	t.replyText = strings.TrimSpace(reply.Text)
	t.confidence = reply.Confidence
	if t.confidence <= 0 || t.confidence > 1 {
		t.confidence = defaultReplyConfidence
	}
	return nil
}

// resolveState derives the caller's state after the reply. Operator speech
// with enough panic indicators overrides the classifier.
func (t *turn) resolveState(current domain.EmotionalState) domain.EmotionalState {
	if t.forcePanic {
		return domain.EmotionPanicked
	}
	return NextEmotionalState(t.replyText, current)
}

func (e *Engine) synthesize(ctx context.Context, t *turn) error {
	synthCtx, cancel := context.WithTimeout(ctx, e.timeouts.Synthesize)
	defer cancel()

	speech, err := e.synthesizer.Synthesize(synthCtx, t.replyText, t.nextState)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if speech.AudioBase64 == "" {
		return fmt.Errorf("synthesize: empty audio: %w", ErrCollaborator)
	}
	t.speech = &speech
	return nil
}

func (e *Engine) persistReply(ctx context.Context, t *turn) error {
	err := e.transcripts.Create(ctx, &domain.Transcript{
		ID:              t.replyID,
		SessionID:       t.sessionID,
		TimestampMs:     t.replyTimestamp,
		Speaker:         domain.SpeakerCaller,
		Text:            t.replyText,
		EmotionalState:  t.nextState,
		ConfidenceScore: t.confidence,
		CreatedAt:       e.now().UTC(),
	})
	if err != nil {
		t.persistFailed = true
		return fmt.Errorf("persist caller transcript: %w", err)
	}
	return nil
}

func (e *Engine) extractReply(ctx context.Context, t *turn) error {
	// Entities reference the transcript row; without it there is nothing to attach to.
	if t.persistFailed {
		return nil
	}
	entities, err := e.entities.Process(ctx, t.replyID, t.replyText)
	if err != nil {
		return err
	}
	t.replyEntities = entities
	return nil
}

func (e *Engine) updateReplyContext(ctx context.Context, t *turn) error {
	now := e.now().UTC()
	metadata := t.replyMetadata()
	metadata["transcript_id"] = t.replyID.String()
	metadata["timestamp_ms"] = t.replyTimestamp
	metadata["confidence"] = t.confidence

	c, err := e.store.Update(ctx, t.sessionID, func(c *domain.SessionContext) error {
		c.AppendTurn(domain.Turn{
			Role:       domain.RoleCaller,
			Text:       t.replyText,
			OccurredAt: now,
			Metadata:   metadata,
		})
		for _, ent := range t.replyEntities {
			c.AddEntity(ent.EntityType, ent.EntityValue)
		}
		c.CurrentEmotionalState = t.nextState
		return nil
	})
	if err != nil {
		return fmt.Errorf("append caller turn: %w", err)
	}
	t.context = c
	return nil
}

// replyMetadata holds the markers a client sees on a degraded reply.
func (t *turn) replyMetadata() map[string]any {
	m := map[string]any{}
	if t.fallback {
		m["fallback"] = true
	}
	if t.persistFailed {
		m["persistence_failed"] = true
	}
	return m
}

func (e *Engine) emit(ctx context.Context, t *turn) error {
	for _, msg := range t.messages() {
		if err := e.emitter.Send(ctx, t.sessionID, msg); err != nil && errors.Is(err, ErrChannelClosed) {
			return fmt.Errorf("emit %s: %w", msg.MessageType(), err)
		}
	}
	return nil
}

// messages lists a turn's frames in emission order: operator transcript,
// operator entities, caller transcript, audio, caller entities, emotional state.
func (t *turn) messages() []OutboundMessage {
	var out []OutboundMessage

	if t.operator != nil {
		out = append(out, TranscriptUpdate{
			Envelope:        newEnvelope(MessageTranscriptUpdate, t.sessionID),
			TranscriptID:    t.operator.ID,
			Speaker:         domain.SpeakerOperator,
			Text:            t.operator.Text,
			TimestampMs:     t.operator.TimestampMs,
			ConfidenceScore: t.operator.ConfidenceScore,
		})
		for _, ent := range t.operatorEntities {
			out = append(out, newEntityUpdate(ent, t.sessionID))
		}
	}

	reply := TranscriptUpdate{
		Envelope:        newEnvelope(MessageTranscriptUpdate, t.sessionID),
		TranscriptID:    t.replyID,
		Speaker:         domain.SpeakerCaller,
		Text:            t.replyText,
		TimestampMs:     t.replyTimestamp,
		ConfidenceScore: t.confidence,
	}
	if m := t.replyMetadata(); len(m) > 0 {
		reply.Metadata = m
	}
	out = append(out, reply)

	if t.speech != nil {
		out = append(out, AudioChunk{
			Envelope:    newEnvelope(MessageAudioChunk, t.sessionID),
			AudioData:   t.speech.AudioBase64,
			TimestampMs: t.replyTimestamp,
			DurationMs:  t.speech.DurationMs,
		})
	}

	for _, ent := range t.replyEntities {
		out = append(out, newEntityUpdate(ent, t.sessionID))
	}

	out = append(out, EmotionalStateUpdate{
		Envelope:    newEnvelope(MessageEmotionalState, t.sessionID),
		State:       t.nextState,
		Intensity:   Intensity(t.nextState),
		TimestampMs: t.replyTimestamp,
	})

	return out
}
