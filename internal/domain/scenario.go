package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d DifficultyLevel) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// CallerProfile describes the simulated caller's personality and background.
type CallerProfile struct {
	Name                  string         `json:"name,omitempty"`
	Age                   int            `json:"age,omitempty"`
	BackgroundStory       string         `json:"background_story,omitempty"`
	PersonalityTraits     []string       `json:"personality_traits,omitempty"`
	CommunicationStyle    string         `json:"communication_style,omitempty"`
	InitialEmotionalState EmotionalState `json:"initial_emotional_state,omitempty"`
}

type KeyEntity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ScenarioScript holds the initial conditions handed to the caller model.
type ScenarioScript struct {
	InitialSituation string      `json:"initial_situation,omitempty"`
	EmergencyType    string      `json:"emergency_type,omitempty"`
	LocationType     string      `json:"location_type,omitempty"`
	KeyEntities      []KeyEntity `json:"key_entities,omitempty"`
	ExpectedFlow     []string    `json:"expected_flow,omitempty"`
}

type Scenario struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	CallerProfile   CallerProfile   `json:"caller_profile"`
	Script          ScenarioScript  `json:"scenario_script"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Snapshot copies the parts of a scenario a running call depends on.
func (s *Scenario) Snapshot() ScenarioSnapshot {
	script := s.Script
	script.KeyEntities = append([]KeyEntity(nil), s.Script.KeyEntities...)
	script.ExpectedFlow = append([]string(nil), s.Script.ExpectedFlow...)
	return ScenarioSnapshot{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		Script:          script,
		DifficultyLevel: s.DifficultyLevel,
	}
}

type ScenarioRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Scenario, error)
	// List returns active scenarios; an empty difficulty matches all levels.
	List(ctx context.Context, difficulty DifficultyLevel, limit, offset int) ([]*Scenario, error)
	Count(ctx context.Context, difficulty DifficultyLevel) (int64, error)
}
