package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/errors"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

type contextKey string

const principalKey contextKey = "principal"

// AuthMiddleware verifies the bearer credential and attaches the resulting
// principal to the request context. Requests without a valid credential are
// rejected; the REST surface has no guest path.
func AuthMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the principal attached by AuthMiddleware.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// statusForKind maps the error taxonomy onto HTTP statuses.
func statusForKind(kind string) int {
	switch kind {
	case errors.ErrInvalidToken:
		return http.StatusUnauthorized
	case errors.ErrAccessDenied, errors.ErrGuestDenied:
		return http.StatusForbidden
	case errors.ErrSessionNotFound, errors.ErrInvalidInvite:
		return http.StatusNotFound
	case errors.ErrSessionFull:
		return http.StatusConflict
	case errors.ErrInvalidPayload, errors.ErrUnsupportedLanguage:
		return http.StatusBadRequest
	case errors.ErrRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrExecutionTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the JSON error body of the REST surface.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := errors.Kind(err)
	status := statusForKind(kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(errorResponse{Error: kind, Message: err.Error()}); encErr != nil {
		logger.Errorf("Failed to encode error response: %v", encErr)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
