package call

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/callsim/internal/domain"
)

// EntityPipeline runs extraction over one transcript line and persists the
// results. Extraction failure is reported; a single entity that fails to
// persist is logged and left out of the result.
type EntityPipeline struct {
	extractor Extractor
	sink      EntitySink
	timeout   time.Duration
	now       func() time.Time
}

func NewEntityPipeline(extractor Extractor, sink EntitySink, timeout time.Duration) *EntityPipeline {
	return &EntityPipeline{
		extractor: extractor,
		sink:      sink,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Process extracts entities from text and persists each against transcriptID.
// It returns the entities that were stored, in extraction order.
func (p *EntityPipeline) Process(ctx context.Context, transcriptID uuid.UUID, text string) ([]*domain.ExtractedEntity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.timeout)
	candidates, err := p.extractor.ExtractEntities(extractCtx, text)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("call.EntityPipeline.Process: extract: %w: %w", ErrCollaborator, err)
	}

	entities := make([]*domain.ExtractedEntity, 0, len(candidates))
	for _, c := range candidates {
		if c.Type == "" || c.Value == "" {
			continue
		}

		e := &domain.ExtractedEntity{
			ID:              uuid.New(),
			TranscriptID:    transcriptID,
			EntityType:      c.Type,
			EntityValue:     c.Value,
			ConfidenceScore: c.Confidence,
			StartChar:       c.StartChar,
			EndChar:         c.EndChar,
			Metadata:        c.Metadata,
			CreatedAt:       p.now().UTC(),
		}
		if err := p.sink.Create(ctx, e); err != nil {
			log.Warn().Err(err).
				Str("transcript_id", transcriptID.String()).
				Str("entity_type", e.EntityType).
				Msg("persist entity failed")
			continue
		}
		entities = append(entities, e)
	}

	return entities, nil
}
