package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/execute"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

// RuntimesRoutes exposes the execution runtime catalogue.
type RuntimesRoutes struct {
	client *execute.Client
}

// RuntimesRouter creates a new RuntimesRoutes instance.
func RuntimesRouter(client *execute.Client) http.Handler {
	routes := RuntimesRoutes{client: client}

	r := chi.NewRouter()
	r.Get("/", routes.listRuntimes)

	return r
}

// listRuntimes returns the pinned runtime table plus, best effort, the
// sandbox's live listing. A sandbox outage degrades to the local table.
func (s *RuntimesRoutes) listRuntimes(w http.ResponseWriter, r *http.Request) {
	resp := runtimesResponse{Supported: execute.SupportedRuntimes()}

	remote, err := s.client.Runtimes(r.Context())
	if err != nil {
		logger.Warnf("failed to fetch sandbox runtimes: %v", err)
	} else {
		resp.Available = remote
	}

	writeJSON(w, http.StatusOK, resp)
}

// runtimesResponse lists the pinned and live runtimes.
type runtimesResponse struct {
	Supported []execute.Runtime       `json:"supported"`
	Available []execute.RemoteRuntime `json:"available,omitempty"`
}
