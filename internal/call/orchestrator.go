package call

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/callsim/internal/domain"
	"github.com/gosuda/callsim/internal/syncutil"
)

// Orchestrator owns the lifecycle of live calls: starting them, serving each
// connected session as a sequential lane, and ending them.
type Orchestrator struct {
	sessions  domain.CallSessionRepository
	scenarios domain.ScenarioRepository
	entities  domain.EntityRepository
	metrics   domain.MetricRepository
	contexts  domain.ContextStore
	registry  *Registry
	engine    *Engine

	// lanes serializes turns per session. A reconnect can briefly leave two
	// lanes serving the same id; only one of them runs a turn at a time.
	lanes syncutil.KeyedMutex[uuid.UUID]
	now   func() time.Time
}

func NewOrchestrator(
	sessions domain.CallSessionRepository,
	scenarios domain.ScenarioRepository,
	entities domain.EntityRepository,
	metrics domain.MetricRepository,
	contexts domain.ContextStore,
	registry *Registry,
	engine *Engine,
) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		scenarios: scenarios,
		entities:  entities,
		metrics:   metrics,
		contexts:  contexts,
		registry:  registry,
		engine:    engine,
		now:       time.Now,
	}
}

// StartCall opens a call on a scenario: it records an active session and
// seeds the session context from the scenario.
func (o *Orchestrator) StartCall(ctx context.Context, operatorID string, scenarioID uuid.UUID) (*domain.CallSession, error) {
	scenario, err := o.scenarios.GetByID(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("call.Orchestrator.StartCall: get scenario: %w", err)
	}

	now := o.now().UTC()
	session := &domain.CallSession{
		ID:         uuid.New(),
		OperatorID: operatorID,
		ScenarioID: scenario.ID,
		Status:     domain.CallStatusActive,
		StartedAt:  now,
		Metadata:   map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("call.Orchestrator.StartCall: create session: %w", err)
	}

	if _, err := o.contexts.Create(ctx, session.ID, scenario.Snapshot(), scenario.CallerProfile); err != nil {
		if finishErr := session.Finish(domain.CallStatusError, o.now().UTC()); finishErr == nil {
			if updateErr := o.sessions.Finish(ctx, session); updateErr != nil {
				log.Error().Err(updateErr).Str("session_id", session.ID.String()).Msg("mark session errored")
			}
		}
		return nil, fmt.Errorf("call.Orchestrator.StartCall: create context: %w", err)
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("scenario_id", scenario.ID.String()).
		Str("operator_id", operatorID).
		Msg("call started")

	return session, nil
}

// EndCall gracefully completes an active call, records notes and feedback,
// and drops the live context. Ending a call that is not active returns
// domain.ErrInvalidTransition.
func (o *Orchestrator) EndCall(ctx context.Context, sessionID uuid.UUID, notes, feedback string) (*domain.CallSession, error) {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("call.Orchestrator.EndCall: %w", err)
	}

	turnCount := o.turnCount(ctx, sessionID)

	if err := session.Finish(domain.CallStatusCompleted, o.now().UTC()); err != nil {
		return nil, fmt.Errorf("call.Orchestrator.EndCall: status %q: %w", session.Status, err)
	}
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}
	if notes != "" {
		session.Metadata["notes"] = notes
	}
	if feedback != "" {
		session.Metadata["operator_feedback"] = feedback
	}

	if err := o.sessions.Finish(ctx, session); err != nil {
		return nil, fmt.Errorf("call.Orchestrator.EndCall: %w", err)
	}

	o.recordMetrics(ctx, sessionID, turnCount)
	o.dropContext(ctx, sessionID)
	o.registry.Close(sessionID, "call ended")

	log.Info().Str("session_id", sessionID.String()).Int64("duration_ms", *session.DurationMs).Msg("call completed")

	return session, nil
}

// Serve runs the lane for one connection until the client leaves, the call is
// terminated, or an unexpected error occurs. The channel is always
// unregistered on return; the session context survives a disconnect.
func (o *Orchestrator) Serve(ctx context.Context, sessionID uuid.UUID, ch Channel) (err error) {
	logger := log.With().Str("session_id", sessionID.String()).Logger()

	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil || session.Status != domain.CallStatusActive {
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			o.reject(ctx, sessionID, ch, CodeSessionNotFound, "call session not found: "+sessionID.String())
			return fmt.Errorf("call.Orchestrator.Serve: %w", ErrSessionNotActive)
		}
		o.reject(ctx, sessionID, ch, CodeInternalError, "failed to load call session")
		return fmt.Errorf("call.Orchestrator.Serve: get session: %w", err)
	}

	if _, err := o.contexts.Get(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.reject(ctx, sessionID, ch, CodeContextNotFound, "session context not found")
			return fmt.Errorf("call.Orchestrator.Serve: %w", err)
		}
		o.reject(ctx, sessionID, ch, CodeInternalError, "failed to load session context")
		return fmt.Errorf("call.Orchestrator.Serve: get context: %w", err)
	}

	o.registry.Register(sessionID, ch)
	defer o.registry.UnregisterChannel(sessionID, ch)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("session lane panicked")
			o.fail(ctx, sessionID, ch)
			err = fmt.Errorf("call.Orchestrator.Serve: panic: %v", r)
		}
	}()

	if err := o.greet(ctx, sessionID); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			return nil
		}
		logger.Warn().Err(err).Msg("greeting failed")
	}

	for {
		data, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) || ctx.Err() != nil {
				logger.Info().Msg("client disconnected")
				return nil
			}
			o.fail(ctx, sessionID, ch)
			return fmt.Errorf("call.Orchestrator.Serve: receive: %w", err)
		}

		msg, err := DecodeInbound(data)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping malformed message")
			continue
		}

		done, err := o.dispatch(ctx, sessionID, msg)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				logger.Info().Msg("channel closed mid-turn")
				return nil
			}
			o.fail(ctx, sessionID, ch)
			return fmt.Errorf("call.Orchestrator.Serve: %w", err)
		}
		if done {
			return nil
		}
	}
}

// greet has the caller speak first on a fresh call. A reconnecting client
// already has history and is not greeted again.
func (o *Orchestrator) greet(ctx context.Context, sessionID uuid.UUID) error {
	unlock := o.lanes.Lock(sessionID)
	defer unlock()

	c, err := o.contexts.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("call.Orchestrator.greet: %w", err)
	}
	if c.TurnCount() > 0 {
		return nil
	}

	if _, err := o.engine.Run(ctx, sessionID, Utterance{Greeting: true}); err != nil {
		return fmt.Errorf("call.Orchestrator.greet: %w", err)
	}
	return nil
}

// dispatch handles one inbound message. It reports done when the session has
// been terminated and the lane should stop.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID uuid.UUID, msg InboundMessage) (bool, error) {
	unlock := o.lanes.Lock(sessionID)
	defer unlock()

	switch msg.Type {
	case MessageAudioChunk:
		raw, err := ValidateAudioChunk(msg.AudioData)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("invalid audio chunk")
			return false, o.send(ctx, sessionID, NewErrorMessage(sessionID, CodeInvalidAudio, "invalid audio chunk"))
		}
		log.Debug().Str("session_id", sessionID.String()).Int("bytes", len(raw)).Msg("audio chunk received")
		return false, nil

	case MessageTranscript:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return false, nil
		}
		_, err := o.engine.Run(ctx, sessionID, Utterance{Text: text, TimestampMs: msg.TimestampMs})
		if err != nil && errors.Is(err, ErrChannelClosed) {
			return false, err
		}
		// Other turn failures were already reported to the client.
		return false, nil

	case MessageControl:
		if msg.Action == ActionTerminate {
			return o.terminate(ctx, sessionID)
		}
		log.Info().Str("session_id", sessionID.String()).Str("action", msg.Action).Msg("control action")
		return false, o.send(ctx, sessionID, NewControlAck(sessionID, msg.Action, AckSuccess))

	default:
		log.Warn().Str("session_id", sessionID.String()).Str("type", string(msg.Type)).Msg("unknown message type")
		return false, nil
	}
}

// terminate ends the call at the client's request. If the durable record
// cannot be updated the client gets an error ack and the session stays open.
func (o *Orchestrator) terminate(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	turnCount := o.turnCount(ctx, sessionID)

	err := o.finishSession(ctx, sessionID, domain.CallStatusTerminated)
	switch {
	case err == nil:
		o.recordMetrics(ctx, sessionID, turnCount)
	case errors.Is(err, domain.ErrInvalidTransition):
		// Already ended elsewhere; only the live state is left to clean up.
		log.Info().Str("session_id", sessionID.String()).Msg("terminate on ended session")
	default:
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("terminate failed")
		return false, o.send(ctx, sessionID, NewControlAck(sessionID, ActionTerminate, AckError))
	}

	o.dropContext(ctx, sessionID)

	if err := o.send(ctx, sessionID, NewControlAck(sessionID, ActionTerminate, AckSuccess)); err != nil {
		return true, nil //nolint:nilerr // client is gone, termination is complete
	}
	o.registry.Close(sessionID, "call terminated")

	log.Info().Str("session_id", sessionID.String()).Msg("call terminated")
	return true, nil
}

func (o *Orchestrator) finishSession(ctx context.Context, sessionID uuid.UUID, status domain.CallStatus) error {
	session, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("call.Orchestrator.finishSession: %w", err)
	}
	if err := session.Finish(status, o.now().UTC()); err != nil {
		return fmt.Errorf("call.Orchestrator.finishSession: %w", err)
	}
	if err := o.sessions.Finish(ctx, session); err != nil {
		return fmt.Errorf("call.Orchestrator.finishSession: %w", err)
	}
	return nil
}

func (o *Orchestrator) turnCount(ctx context.Context, sessionID uuid.UUID) int {
	c, err := o.contexts.Get(ctx, sessionID)
	if err != nil {
		return 0
	}
	return c.TurnCount()
}

// recordMetrics stores end-of-call performance metrics. Failures are logged.
func (o *Orchestrator) recordMetrics(ctx context.Context, sessionID uuid.UUID, turnCount int) {
	entities, err := o.entities.CountBySession(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("count entities")
	}

	now := o.now().UTC()
	for name, value := range map[string]float64{
		domain.MetricTurnCount:         float64(turnCount),
		domain.MetricEntitiesExtracted: float64(entities),
	} {
		m := &domain.PerformanceMetric{
			ID:          uuid.New(),
			SessionID:   sessionID,
			MetricName:  name,
			MetricValue: value,
			MeasuredAt:  now,
		}
		if err := o.metrics.Record(ctx, m); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Str("metric", name).Msg("record metric")
		}
	}
}

// Shutdown tells every connected client the server is going away and closes
// their channels. Session contexts are kept so clients can resume elsewhere.
func (o *Orchestrator) Shutdown(ctx context.Context, reason string) int {
	n := o.registry.Count()
	o.registry.Broadcast(ctx, func(sessionID uuid.UUID) OutboundMessage {
		return NewErrorMessage(sessionID, CodeServerShutdown, reason)
	})
	o.registry.CloseAll(reason)
	return n
}

func (o *Orchestrator) dropContext(ctx context.Context, sessionID uuid.UUID) {
	if err := o.contexts.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("delete session context")
	}
}

func (o *Orchestrator) send(ctx context.Context, sessionID uuid.UUID, msg OutboundMessage) error {
	if err := o.registry.Send(ctx, sessionID, msg); err != nil {
		return fmt.Errorf("call.Orchestrator.send: %w", err)
	}
	return nil
}

// reject reports a connect-time failure on a channel that was never registered.
func (o *Orchestrator) reject(ctx context.Context, sessionID uuid.UUID, ch Channel, code ErrorCode, message string) {
	log.Warn().Str("session_id", sessionID.String()).Str("error_code", string(code)).Msg("connection rejected")
	if err := ch.Send(ctx, NewErrorMessage(sessionID, code, message)); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("send rejection")
	}
	_ = ch.Close(string(code))
}

// fail reports an unexpected lane error and closes the channel.
func (o *Orchestrator) fail(ctx context.Context, sessionID uuid.UUID, ch Channel) {
	if err := ch.Send(ctx, NewErrorMessage(sessionID, CodeInternalError, "internal error")); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("send internal error")
	}
	o.registry.UnregisterChannel(sessionID, ch)
	_ = ch.Close("internal error")
}
