package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/callsim/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	sessions    *CallSessionRepo
	transcripts *TranscriptRepo
	entities    *EntityRepo
	scenarios   *ScenarioRepo
	metrics     *MetricRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		sessions:    NewCallSessionRepo(pool),
		transcripts: NewTranscriptRepo(pool),
		entities:    NewEntityRepo(pool),
		scenarios:   NewScenarioRepo(pool),
		metrics:     NewMetricRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) CallSessions() domain.CallSessionRepository { return s.sessions }
func (s *Store) Transcripts() domain.TranscriptRepository   { return s.transcripts }
func (s *Store) Entities() domain.EntityRepository          { return s.entities }
func (s *Store) Scenarios() domain.ScenarioRepository       { return s.scenarios }
func (s *Store) Metrics() domain.MetricRepository           { return s.metrics }
