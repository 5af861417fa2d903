package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/callsim/internal/domain"
)

type ListScenariosInput struct {
	Difficulty string `query:"difficulty" enum:"easy,medium,hard" doc:"Filter by difficulty level"`
	Skip       int    `query:"skip" minimum:"0" default:"0" doc:"Number of scenarios to skip"`
	Limit      int    `query:"limit" minimum:"1" maximum:"100" default:"100" doc:"Max results"`
}

type ScenarioList struct {
	Scenarios  []*domain.Scenario `json:"scenarios"`
	TotalCount int64              `json:"total_count"`
}

type ListScenariosOutput struct {
	Body ScenarioList
}

type GetScenarioInput struct {
	ID uuid.UUID `path:"id" doc:"Scenario ID"`
}

type GetScenarioOutput struct {
	Body *domain.Scenario
}

func RegisterScenarioRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-scenarios",
		Method:      http.MethodGet,
		Path:        "/scenarios",
		Summary:     "List active training scenarios",
		Tags:        []string{"Scenarios"},
	}, func(ctx context.Context, input *ListScenariosInput) (*ListScenariosOutput, error) {
		difficulty := domain.DifficultyLevel(input.Difficulty)

		scenarios, err := store.Scenarios().List(ctx, difficulty, input.Limit, input.Skip)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list scenarios", err)
		}
		total, err := store.Scenarios().Count(ctx, difficulty)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count scenarios", err)
		}
		if scenarios == nil {
			scenarios = []*domain.Scenario{}
		}

		return &ListScenariosOutput{Body: ScenarioList{Scenarios: scenarios, TotalCount: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-scenario",
		Method:      http.MethodGet,
		Path:        "/scenarios/{id}",
		Summary:     "Get a training scenario",
		Tags:        []string{"Scenarios"},
	}, func(ctx context.Context, input *GetScenarioInput) (*GetScenarioOutput, error) {
		scenario, err := store.Scenarios().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("scenario not found")
			}
			return nil, huma.Error500InternalServerError("failed to get scenario", err)
		}

		return &GetScenarioOutput{Body: scenario}, nil
	})
}
