package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Speaker string

const (
	SpeakerOperator Speaker = "operator"
	SpeakerCaller   Speaker = "caller"
)

// Transcript is one spoken line of a call. Entries are immutable once written
// and ordered by TimestampMs within their session.
type Transcript struct {
	ID              uuid.UUID      `json:"id"`
	SessionID       uuid.UUID      `json:"session_id"`
	TimestampMs     int64          `json:"timestamp_ms"`
	Speaker         Speaker        `json:"speaker"`
	Text            string         `json:"text"`
	AudioURL        string         `json:"audio_url,omitempty"`
	EmotionalState  EmotionalState `json:"emotional_state,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ExtractedEntity is a typed span found in a transcript's text.
type ExtractedEntity struct {
	ID              uuid.UUID      `json:"id"`
	TranscriptID    uuid.UUID      `json:"transcript_id"`
	EntityType      string         `json:"entity_type"`
	EntityValue     string         `json:"entity_value"`
	ConfidenceScore float64        `json:"confidence_score"`
	StartChar       int            `json:"start_char"`
	EndChar         int            `json:"end_char"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

type TranscriptRepository interface {
	Create(ctx context.Context, t *Transcript) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Transcript, error)
}

type EntityRepository interface {
	Create(ctx context.Context, e *ExtractedEntity) error
	ListByTranscript(ctx context.Context, transcriptID uuid.UUID) ([]*ExtractedEntity, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}
