package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/callsim/internal/api/v1"
	"github.com/gosuda/callsim/internal/api/ws"
)

const healthTimeout = 2 * time.Second

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterCallRoutes(api, deps.Store, deps.Calls)
	v1.RegisterScenarioRoutes(api, deps.Store)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/call/{sessionID}", hub.ServeCall)
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// healthHandler pings every dependency. Any failure turns the response into
// a 503 naming the failed service.
func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Services: make(map[string]string, len(checks))}
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				log.Warn().Err(err).Str("service", name).Msg("health check failed")
				resp.Status = "degraded"
				resp.Services[name] = "unavailable"
				continue
			}
			resp.Services[name] = "ok"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
