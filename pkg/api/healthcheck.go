package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
)

// HealthcheckRoutes reports process liveness and the live session count.
type HealthcheckRoutes struct {
	registry session.Registry
}

// HealthcheckRouter creates a new HealthcheckRoutes instance.
func HealthcheckRouter(registry session.Registry) http.Handler {
	routes := HealthcheckRoutes{registry: registry}

	r := chi.NewRouter()
	r.Get("/", routes.getHealth)

	return r
}

func (s *HealthcheckRoutes) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: s.registry.Len(),
	})
}

// healthResponse is the liveness body.
type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
