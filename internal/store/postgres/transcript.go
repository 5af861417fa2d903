package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/callsim/internal/domain"
)

type TranscriptRepo struct {
	pool *pgxpool.Pool
}

func NewTranscriptRepo(pool *pgxpool.Pool) *TranscriptRepo {
	return &TranscriptRepo{pool: pool}
}

func (r *TranscriptRepo) Create(ctx context.Context, t *domain.Transcript) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO call_transcripts (id, session_id, timestamp_ms, speaker, text, audio_url, emotional_state, confidence_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		t.ID, t.SessionID, t.TimestampMs, t.Speaker, t.Text,
		t.AudioURL, string(t.EmotionalState), t.ConfidenceScore, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("transcriptRepo.Create: %w", err)
	}

	return nil
}

// ListBySession returns a session's transcript in spoken order.
func (r *TranscriptRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Transcript, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, timestamp_ms, speaker, text, COALESCE(audio_url, ''), COALESCE(emotional_state, ''),
		        COALESCE(confidence_score, 0), created_at
		 FROM call_transcripts WHERE session_id = $1
		 ORDER BY timestamp_ms, created_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("transcriptRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var transcripts []*domain.Transcript
	for rows.Next() {
		var t domain.Transcript
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.TimestampMs, &t.Speaker, &t.Text, &t.AudioURL, &t.EmotionalState,
			&t.ConfidenceScore, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("transcriptRepo.ListBySession: scan: %w", err)
		}
		transcripts = append(transcripts, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcriptRepo.ListBySession: rows: %w", err)
	}

	return transcripts, nil
}
