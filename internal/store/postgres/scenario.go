package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/callsim/internal/domain"
)

type ScenarioRepo struct {
	pool *pgxpool.Pool
}

func NewScenarioRepo(pool *pgxpool.Pool) *ScenarioRepo {
	return &ScenarioRepo{pool: pool}
}

func (r *ScenarioRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Scenario, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, description, caller_profile, scenario_script, difficulty_level, is_active, created_at, updated_at
		 FROM training_scenarios WHERE id = $1`,
		id,
	)

	s, err := scanScenario(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scenarioRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scenarioRepo.GetByID: %w", err)
	}

	return s, nil
}

func (r *ScenarioRepo) List(ctx context.Context, difficulty domain.DifficultyLevel, limit, offset int) ([]*domain.Scenario, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, caller_profile, scenario_script, difficulty_level, is_active, created_at, updated_at
		 FROM training_scenarios
		 WHERE is_active AND ($1::text = '' OR difficulty_level::text = $1::text)
		 ORDER BY name
		 LIMIT $2 OFFSET $3`,
		string(difficulty), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("scenarioRepo.List: %w", err)
	}
	defer rows.Close()

	var scenarios []*domain.Scenario
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scenarioRepo.List: %w", err)
		}
		scenarios = append(scenarios, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scenarioRepo.List: rows: %w", err)
	}

	return scenarios, nil
}

func (r *ScenarioRepo) Count(ctx context.Context, difficulty domain.DifficultyLevel) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM training_scenarios
		 WHERE is_active AND ($1::text = '' OR difficulty_level::text = $1::text)`,
		string(difficulty),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("scenarioRepo.Count: %w", err)
	}

	return n, nil
}

func scanScenario(row pgx.Row) (*domain.Scenario, error) {
	var s domain.Scenario
	var profile, script []byte

	if err := row.Scan(
		&s.ID, &s.Name, &s.Description, &profile, &script, &s.DifficultyLevel,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(profile, &s.CallerProfile); err != nil {
		return nil, fmt.Errorf("unmarshal caller profile: %w", err)
	}
	if err := json.Unmarshal(script, &s.Script); err != nil {
		return nil, fmt.Errorf("unmarshal scenario script: %w", err)
	}

	return &s, nil
}
