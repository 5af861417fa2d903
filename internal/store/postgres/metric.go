package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/callsim/internal/domain"
)

type MetricRepo struct {
	pool *pgxpool.Pool
}

func NewMetricRepo(pool *pgxpool.Pool) *MetricRepo {
	return &MetricRepo{pool: pool}
}

func (r *MetricRepo) Record(ctx context.Context, m *domain.PerformanceMetric) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO performance_metrics (id, session_id, metric_name, metric_value, measured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, m.MetricName, m.MetricValue, m.MeasuredAt,
	)
	if err != nil {
		return fmt.Errorf("metricRepo.Record: %w", err)
	}

	return nil
}

func (r *MetricRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.PerformanceMetric, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, metric_name, metric_value, measured_at
		 FROM performance_metrics WHERE session_id = $1
		 ORDER BY measured_at, metric_name`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("metricRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var metrics []*domain.PerformanceMetric
	for rows.Next() {
		var m domain.PerformanceMetric
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MetricName, &m.MetricValue, &m.MeasuredAt); err != nil {
			return nil, fmt.Errorf("metricRepo.ListBySession: scan: %w", err)
		}
		metrics = append(metrics, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metricRepo.ListBySession: rows: %w", err)
	}

	return metrics, nil
}
