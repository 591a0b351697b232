// Package api contains the REST surface and the HTTP server assembly that
// also hosts the websocket endpoint and the metrics scrape handler.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/execute"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/telemetry"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Deps are the components the server composes.
type Deps struct {
	Verifier   auth.Verifier
	Admission  *session.Admission
	Registry   session.Registry
	Notifier   DeletionNotifier
	ExecClient *execute.Client

	// Realtime is the websocket handshake handler, mounted at /ws. It
	// performs its own authentication so guests can connect.
	Realtime http.Handler
}

// NewRouter assembles the full HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		headersMiddleware,
	)

	r.Mount("/healthz", HealthcheckRouter(deps.Registry))
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	r.Mount("/ws", deps.Realtime)

	// The websocket endpoint holds connections open, so the timeout
	// middleware applies to the REST subtree only.
	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.Timeout(middlewareTimeout),
			AuthMiddleware(deps.Verifier),
		)
		r.Mount("/sessions", SessionsRouter(deps.Admission, deps.Registry, deps.Notifier))
		r.Mount("/runtimes", RuntimesRouter(deps.ExecClient))
	})

	return r
}

// Serve runs the server on the given listener until ctx is cancelled, then
// shuts down gracefully. The caller owns signal handling and the listener's
// port selection.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Infof("server listening on %s", listener.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("graceful shutdown failed: %v", err)
		return err
	}
	logger.Infof("server stopped")
	return nil
}
