package call

import (
	"context"

	"github.com/gosuda/callsim/internal/domain"
)

// ReplyRequest is everything the generator sees when producing a caller line.
type ReplyRequest struct {
	History       []domain.Turn
	CallerProfile domain.CallerProfile
	Scenario      domain.ScenarioSnapshot
	CurrentState  domain.EmotionalState
}

// Reply is a generated caller line. EmotionalState is advisory; the turn
// engine derives the caller's state itself.
type Reply struct {
	Text           string
	EmotionalState domain.EmotionalState
	Confidence     float64
}

type Generator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (Reply, error)
}

// Speech is synthesized audio for one caller line.
type Speech struct {
	AudioBase64 string
	DurationMs  int64
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, state domain.EmotionalState) (Speech, error)
}

// EntityCandidate is an entity found by an extractor, not yet persisted.
type EntityCandidate struct {
	Type       string
	Value      string
	Confidence float64
	StartChar  int
	EndChar    int
	Metadata   map[string]any
}

type Extractor interface {
	ExtractEntities(ctx context.Context, text string) ([]EntityCandidate, error)
}

type TranscriptSink interface {
	Create(ctx context.Context, t *domain.Transcript) error
}

type EntitySink interface {
	Create(ctx context.Context, e *domain.ExtractedEntity) error
}
