package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type EmotionalState string

const (
	EmotionCalm       EmotionalState = "calm"
	EmotionAnxious    EmotionalState = "anxious"
	EmotionPanicked   EmotionalState = "panicked"
	EmotionHysterical EmotionalState = "hysterical"
)

// Valid reports whether e belongs to the closed set of caller states.
func (e EmotionalState) Valid() bool {
	switch e {
	case EmotionCalm, EmotionAnxious, EmotionPanicked, EmotionHysterical:
		return true
	default:
		return false
	}
}

type Role string

const (
	RoleOperator Role = "operator"
	RoleCaller   Role = "caller"
)

// Turn is one utterance in the conversation history.
type Turn struct {
	Role       Role           `json:"role"`
	Text       string         `json:"text"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ScenarioSnapshot is the immutable copy of a scenario taken when a call starts.
type ScenarioSnapshot struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Script          ScenarioScript  `json:"scenario_script"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level"`
}

// SessionContext is the conversational state of one live call.
//
// ConversationHistory is append-only. The turn count is always derived from
// it and never stored separately.
type SessionContext struct {
	SessionID             uuid.UUID           `json:"session_id"`
	Scenario              ScenarioSnapshot    `json:"scenario"`
	CallerProfile         CallerProfile       `json:"caller_profile"`
	ConversationHistory   []Turn              `json:"conversation_history"`
	CurrentEmotionalState EmotionalState      `json:"current_emotional_state"`
	ExtractedEntities     map[string][]string `json:"extracted_entities"`
	StartedAt             time.Time           `json:"started_at"`
	LastActivityAt        time.Time           `json:"last_activity_at"`
	// Revision increases by one on every successful store update.
	Revision int64 `json:"revision"`
}

// NewSessionContext seeds a context from a scenario snapshot and caller profile.
func NewSessionContext(id uuid.UUID, scenario ScenarioSnapshot, profile CallerProfile, now time.Time) *SessionContext {
	state := profile.InitialEmotionalState
	if !state.Valid() {
		state = EmotionCalm
	}
	return &SessionContext{
		SessionID:             id,
		Scenario:              scenario,
		CallerProfile:         profile,
		ConversationHistory:   []Turn{},
		CurrentEmotionalState: state,
		ExtractedEntities:     map[string][]string{},
		StartedAt:             now,
		LastActivityAt:        now,
	}
}

// TurnCount returns the number of turns in the conversation history.
func (c *SessionContext) TurnCount() int {
	return len(c.ConversationHistory)
}

// AppendTurn adds a turn to the end of the history.
func (c *SessionContext) AppendTurn(t Turn) {
	c.ConversationHistory = append(c.ConversationHistory, t)
}

// RecentHistory returns a copy of the last n turns (all turns when n <= 0).
func (c *SessionContext) RecentHistory(n int) []Turn {
	history := c.ConversationHistory
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	return slices.Clone(history)
}

// AddEntity records a distinct value for an entity type. It reports whether
// the value was new.
func (c *SessionContext) AddEntity(entityType, value string) bool {
	if c.ExtractedEntities == nil {
		c.ExtractedEntities = map[string][]string{}
	}
	if slices.Contains(c.ExtractedEntities[entityType], value) {
		return false
	}
	c.ExtractedEntities[entityType] = append(c.ExtractedEntities[entityType], value)
	return true
}

// EntityCount returns the number of distinct entity values seen so far.
func (c *SessionContext) EntityCount() int {
	n := 0
	for _, values := range c.ExtractedEntities {
		n += len(values)
	}
	return n
}

// MarshalContext encodes a context for storage.
func MarshalContext(c *SessionContext) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("domain.MarshalContext: %w", err)
	}
	return data, nil
}

// UnmarshalContext decodes a stored context.
func UnmarshalContext(data []byte) (*SessionContext, error) {
	var c SessionContext
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("domain.UnmarshalContext: %w", err)
	}
	if c.ExtractedEntities == nil {
		c.ExtractedEntities = map[string][]string{}
	}
	return &c, nil
}

// ContextMutator edits a context in place. Returning an error aborts the update
// and leaves the stored context unchanged. Stores that retry on contention call
// the mutator again with a freshly loaded context, so it must not carry state
// between invocations.
type ContextMutator func(c *SessionContext) error

// ContextStore holds live session contexts behind a sliding TTL.
//
// Update is atomic per session id: concurrent updates to the same id never
// overwrite each other's effect. Get and Update refresh the TTL.
type ContextStore interface {
	Create(ctx context.Context, id uuid.UUID, scenario ScenarioSnapshot, profile CallerProfile) (*SessionContext, error)
	Get(ctx context.Context, id uuid.UUID) (*SessionContext, error)
	Update(ctx context.Context, id uuid.UUID, mutate ContextMutator) (*SessionContext, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
