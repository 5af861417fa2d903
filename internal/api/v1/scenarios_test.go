package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/callsim/internal/api/v1"
	"github.com/gosuda/callsim/internal/domain"
)

func TestListScenarios(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			scenarios: &mockScenarioRepo{
				listFunc: func(_ context.Context, difficulty domain.DifficultyLevel, limit, offset int) ([]*domain.Scenario, error) {
					assert.Equal(t, domain.DifficultyLevel(""), difficulty)
					assert.Equal(t, 100, limit)
					assert.Equal(t, 0, offset)
					return []*domain.Scenario{
						{ID: uuid.New(), Name: "Car Accident", DifficultyLevel: domain.DifficultyMedium, IsActive: true},
						{ID: uuid.New(), Name: "House Fire", DifficultyLevel: domain.DifficultyEasy, IsActive: true},
					}, nil
				},
				countFunc: func(context.Context, domain.DifficultyLevel) (int64, error) {
					return 5, nil
				},
			},
		}
		v1.RegisterScenarioRoutes(api, store)

		resp := api.Get("/scenarios")

		require.Equal(t, http.StatusOK, resp.Code)
		var body v1.ScenarioList
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Len(t, body.Scenarios, 2)
		assert.Equal(t, int64(5), body.TotalCount)
	})

	t.Run("filters_by_difficulty", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			scenarios: &mockScenarioRepo{
				listFunc: func(_ context.Context, difficulty domain.DifficultyLevel, limit, offset int) ([]*domain.Scenario, error) {
					assert.Equal(t, domain.DifficultyHard, difficulty)
					assert.Equal(t, 2, limit)
					assert.Equal(t, 4, offset)
					return nil, nil
				},
				countFunc: func(_ context.Context, difficulty domain.DifficultyLevel) (int64, error) {
					assert.Equal(t, domain.DifficultyHard, difficulty)
					return 0, nil
				},
			},
		}
		v1.RegisterScenarioRoutes(api, store)

		resp := api.Get("/scenarios?difficulty=hard&skip=4&limit=2")

		require.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{"scenarios":[],"total_count":0}`, resp.Body.String())
	})

	t.Run("rejects_unknown_difficulty", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterScenarioRoutes(api, &mockDataStore{scenarios: &mockScenarioRepo{}})

		resp := api.Get("/scenarios?difficulty=extreme")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			scenarios: &mockScenarioRepo{
				listFunc: func(context.Context, domain.DifficultyLevel, int, int) ([]*domain.Scenario, error) {
					return nil, errors.New("db: connection refused")
				},
			},
		}
		v1.RegisterScenarioRoutes(api, store)

		resp := api.Get("/scenarios")
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}

func TestGetScenario(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		_, api := humatest.New(t)
		store := &mockDataStore{
			scenarios: &mockScenarioRepo{
				getByIDFunc: func(_ context.Context, got uuid.UUID) (*domain.Scenario, error) {
					assert.Equal(t, id, got)
					return &domain.Scenario{
						ID:   id,
						Name: "Medical Emergency",
						CallerProfile: domain.CallerProfile{
							Name:                  "Linda",
							InitialEmotionalState: domain.EmotionPanicked,
						},
						Script:          domain.ScenarioScript{EmergencyType: "medical"},
						DifficultyLevel: domain.DifficultyHard,
						IsActive:        true,
					}, nil
				},
			},
		}
		v1.RegisterScenarioRoutes(api, store)

		resp := api.Get("/scenarios/" + id.String())

		require.Equal(t, http.StatusOK, resp.Code)
		var body domain.Scenario
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, "Medical Emergency", body.Name)
		assert.Equal(t, domain.EmotionPanicked, body.CallerProfile.InitialEmotionalState)
		assert.Equal(t, "medical", body.Script.EmergencyType)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			scenarios: &mockScenarioRepo{
				getByIDFunc: func(context.Context, uuid.UUID) (*domain.Scenario, error) {
					return nil, domain.ErrNotFound
				},
			},
		}
		v1.RegisterScenarioRoutes(api, store)

		resp := api.Get("/scenarios/" + uuid.NewString())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
