package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Metric names recorded when a call ends.
const (
	MetricTurnCount         = "turn_count"
	MetricEntitiesExtracted = "entities_extracted"
)

type PerformanceMetric struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	MetricName  string    `json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	MeasuredAt  time.Time `json:"measured_at"`
}

type MetricRepository interface {
	Record(ctx context.Context, m *PerformanceMetric) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*PerformanceMetric, error)
}
