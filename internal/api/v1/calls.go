package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/callsim/internal/domain"
)

type StartCallInput struct {
	Body struct {
		OperatorID string    `json:"operator_id" minLength:"1" maxLength:"255" doc:"Trainee operator ID"`
		ScenarioID uuid.UUID `json:"scenario_id" doc:"Training scenario ID"`
	}
}

type StartCallOutput struct {
	Status int
	Body   *domain.CallSession
}

type GetCallInput struct {
	ID uuid.UUID `path:"id" doc:"Call session ID"`
}

type GetCallOutput struct {
	Body *domain.CallSession
}

type EndCallInput struct {
	ID   uuid.UUID `path:"id" doc:"Call session ID"`
	Body struct {
		Notes            string `json:"notes,omitempty" maxLength:"10000" doc:"Trainer notes"`
		OperatorFeedback string `json:"operator_feedback,omitempty" maxLength:"10000" doc:"Feedback for the operator"`
	}
}

type EndCallOutput struct {
	Body *domain.CallSession
}

type ListCallsInput struct {
	OperatorID string `query:"operator_id" required:"true" minLength:"1" doc:"Trainee operator ID"`
	Limit      int    `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset     int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListCallsOutput struct {
	Body []*domain.CallSession
}

type GetTranscriptInput struct {
	ID uuid.UUID `path:"id" doc:"Call session ID"`
}

type TranscriptList struct {
	SessionID   uuid.UUID            `json:"session_id"`
	Transcripts []*domain.Transcript `json:"transcripts"`
	TotalCount  int                  `json:"total_count"`
}

type GetTranscriptOutput struct {
	Body TranscriptList
}

type GetCallMetricsInput struct {
	ID uuid.UUID `path:"id" doc:"Call session ID"`
}

type GetCallMetricsOutput struct {
	Body []*domain.PerformanceMetric
}

func RegisterCallRoutes(api huma.API, store DataStore, calls CallService) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-call",
		Method:        http.MethodPost,
		Path:          "/calls/start",
		Summary:       "Start a training call on a scenario",
		Tags:          []string{"Calls"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *StartCallInput) (*StartCallOutput, error) {
		session, err := calls.StartCall(ctx, input.Body.OperatorID, input.Body.ScenarioID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("training scenario not found: " + input.Body.ScenarioID.String())
			}
			return nil, huma.Error500InternalServerError("failed to start call session", err)
		}

		return &StartCallOutput{Status: http.StatusCreated, Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-calls",
		Method:      http.MethodGet,
		Path:        "/calls",
		Summary:     "List an operator's calls, newest first",
		Tags:        []string{"Calls"},
	}, func(ctx context.Context, input *ListCallsInput) (*ListCallsOutput, error) {
		sessions, err := store.CallSessions().ListByOperator(ctx, input.OperatorID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list call sessions", err)
		}
		if sessions == nil {
			sessions = []*domain.CallSession{}
		}

		return &ListCallsOutput{Body: sessions}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-call",
		Method:      http.MethodGet,
		Path:        "/calls/{id}",
		Summary:     "Get a call session",
		Tags:        []string{"Calls"},
	}, func(ctx context.Context, input *GetCallInput) (*GetCallOutput, error) {
		session, err := store.CallSessions().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("call session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get call session", err)
		}

		return &GetCallOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-call",
		Method:      http.MethodPost,
		Path:        "/calls/{id}/end",
		Summary:     "End an active call session",
		Tags:        []string{"Calls"},
	}, func(ctx context.Context, input *EndCallInput) (*EndCallOutput, error) {
		session, err := calls.EndCall(ctx, input.ID, input.Body.Notes, input.Body.OperatorFeedback)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return nil, huma.Error404NotFound("call session not found")
			case errors.Is(err, domain.ErrInvalidTransition):
				return nil, huma.Error400BadRequest("call session is not active")
			default:
				return nil, huma.Error500InternalServerError("failed to end call session", err)
			}
		}

		return &EndCallOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-call-transcript",
		Method:      http.MethodGet,
		Path:        "/calls/{id}/transcript",
		Summary:     "Get the full transcript of a call",
		Tags:        []string{"Calls"},
	}, func(ctx context.Context, input *GetTranscriptInput) (*GetTranscriptOutput, error) {
		if _, err := store.CallSessions().GetByID(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("call session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get call session", err)
		}

		transcripts, err := store.Transcripts().ListBySession(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list transcripts", err)
		}
		if transcripts == nil {
			transcripts = []*domain.Transcript{}
		}

		return &GetTranscriptOutput{Body: TranscriptList{
			SessionID:   input.ID,
			Transcripts: transcripts,
			TotalCount:  len(transcripts),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-call-metrics",
		Method:      http.MethodGet,
		Path:        "/calls/{id}/metrics",
		Summary:     "Get performance metrics recorded for a call",
		Tags:        []string{"Calls"},
	}, func(ctx context.Context, input *GetCallMetricsInput) (*GetCallMetricsOutput, error) {
		metrics, err := store.Metrics().ListBySession(ctx, input.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list metrics", err)
		}
		if metrics == nil {
			metrics = []*domain.PerformanceMetric{}
		}

		return &GetCallMetricsOutput{Body: metrics}, nil
	})
}
