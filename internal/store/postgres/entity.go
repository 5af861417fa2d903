package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/callsim/internal/domain"
)

type EntityRepo struct {
	pool *pgxpool.Pool
}

func NewEntityRepo(pool *pgxpool.Pool) *EntityRepo {
	return &EntityRepo{pool: pool}
}

func (r *EntityRepo) Create(ctx context.Context, e *domain.ExtractedEntity) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("entityRepo.Create: marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO extracted_entities (id, transcript_id, entity_type, entity_value, confidence_score, start_char, end_char, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TranscriptID, e.EntityType, e.EntityValue, e.ConfidenceScore,
		e.StartChar, e.EndChar, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("entityRepo.Create: %w", err)
	}

	return nil
}

func (r *EntityRepo) ListByTranscript(ctx context.Context, transcriptID uuid.UUID) ([]*domain.ExtractedEntity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, transcript_id, entity_type, entity_value, confidence_score, start_char, end_char, metadata, created_at
		 FROM extracted_entities WHERE transcript_id = $1
		 ORDER BY start_char`,
		transcriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("entityRepo.ListByTranscript: %w", err)
	}
	defer rows.Close()

	var entities []*domain.ExtractedEntity
	for rows.Next() {
		var e domain.ExtractedEntity
		var metadata []byte
		if err := rows.Scan(
			&e.ID, &e.TranscriptID, &e.EntityType, &e.EntityValue, &e.ConfidenceScore,
			&e.StartChar, &e.EndChar, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("entityRepo.ListByTranscript: scan: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("entityRepo.ListByTranscript: unmarshal metadata: %w", err)
			}
		}
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entityRepo.ListByTranscript: rows: %w", err)
	}

	return entities, nil
}

// CountBySession counts entities across every transcript of a session.
func (r *EntityRepo) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM extracted_entities e
		 JOIN call_transcripts t ON t.id = e.transcript_id
		 WHERE t.session_id = $1`,
		sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("entityRepo.CountBySession: %w", err)
	}

	return n, nil
}
