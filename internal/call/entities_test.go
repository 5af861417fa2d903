package call_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/callsim/internal/call"
	"github.com/gosuda/callsim/internal/domain"
)

func TestEntityPipeline_Process(t *testing.T) {
	t.Parallel()

	transcriptID := uuid.New()

	t.Run("persists candidates in order", func(t *testing.T) {
		t.Parallel()

		extractor := &stubExtractor{fn: func(context.Context, string) ([]call.EntityCandidate, error) {
			return []call.EntityCandidate{
				{Type: "WEAPON", Value: "gun", Confidence: 0.9, StartChar: 4, EndChar: 7, Metadata: map[string]any{"detection_method": "keyword"}},
				{Type: "INJURY", Value: "bleeding", Confidence: 0.9, StartChar: 12, EndChar: 20},
			}, nil
		}}
		sink := &memEntities{}
		p := call.NewEntityPipeline(extractor, sink, time.Second)

		got, err := p.Process(context.Background(), transcriptID, "a gun and bleeding")
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, "WEAPON", got[0].EntityType)
		assert.Equal(t, "gun", got[0].EntityValue)
		assert.Equal(t, transcriptID, got[0].TranscriptID)
		assert.Equal(t, 4, got[0].StartChar)
		assert.Equal(t, 7, got[0].EndChar)
		assert.Equal(t, "keyword", got[0].Metadata["detection_method"])
		assert.NotEqual(t, uuid.Nil, got[0].ID)
		assert.NotEqual(t, got[0].ID, got[1].ID)

		require.Len(t, sink.entries, 2)
		assert.Equal(t, got[1].ID, sink.entries[1].ID)
	})

	t.Run("blank text skips extraction", func(t *testing.T) {
		t.Parallel()

		called := false
		extractor := &stubExtractor{fn: func(context.Context, string) ([]call.EntityCandidate, error) {
			called = true
			return nil, nil
		}}
		p := call.NewEntityPipeline(extractor, &memEntities{}, time.Second)

		got, err := p.Process(context.Background(), transcriptID, "  \n")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.False(t, called)
	})

	t.Run("extractor failure is reported", func(t *testing.T) {
		t.Parallel()

		extractor := &stubExtractor{fn: func(context.Context, string) ([]call.EntityCandidate, error) {
			return nil, errors.New("model unavailable")
		}}
		p := call.NewEntityPipeline(extractor, &memEntities{}, time.Second)

		_, err := p.Process(context.Background(), transcriptID, "text")
		require.ErrorIs(t, err, call.ErrCollaborator)
	})

	t.Run("extractor gets a deadline", func(t *testing.T) {
		t.Parallel()

		extractor := &stubExtractor{fn: func(ctx context.Context, _ string) ([]call.EntityCandidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		p := call.NewEntityPipeline(extractor, &memEntities{}, 20*time.Millisecond)

		_, err := p.Process(context.Background(), transcriptID, "text")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("incomplete candidates are skipped", func(t *testing.T) {
		t.Parallel()

		extractor := &stubExtractor{fn: func(context.Context, string) ([]call.EntityCandidate, error) {
			return []call.EntityCandidate{{Type: "", Value: "x"}, {Type: "WEAPON", Value: ""}, {Type: "VEHICLE", Value: "truck"}}, nil
		}}
		p := call.NewEntityPipeline(extractor, &memEntities{}, time.Second)

		got, err := p.Process(context.Background(), transcriptID, "a truck")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "truck", got[0].EntityValue)
	})

	t.Run("persist failure drops only that entity", func(t *testing.T) {
		t.Parallel()

		extractor := &stubExtractor{fn: func(context.Context, string) ([]call.EntityCandidate, error) {
			return []call.EntityCandidate{{Type: "WEAPON", Value: "knife"}, {Type: "VEHICLE", Value: "car"}}, nil
		}}
		sink := &memEntities{failFn: func(e *domain.ExtractedEntity) error {
			if e.EntityType == "WEAPON" {
				return errors.New("constraint violation")
			}
			return nil
		}}
		p := call.NewEntityPipeline(extractor, sink, time.Second)

		got, err := p.Process(context.Background(), transcriptID, "knife in the car")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "VEHICLE", got[0].EntityType)
		assert.Len(t, sink.entries, 1)
	})
}
