package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// LoggingMiddleware returns a middleware that logs HTTP requests. Handlers
// get a logger carrying the request ID.
func LoggingMiddleware(ctx context.Context) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := ctxlog.From(ctx).With("request_id", middleware.GetReqID(r.Context()))
			r = r.WithContext(ctxlog.With(r.Context(), logger))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

type ctxKey int

const (
	credentialKey ctxKey = iota
	identityKey
)

func credentialFrom(ctx context.Context) model.Credential {
	cred, _ := ctx.Value(credentialKey).(model.Credential)
	return cred
}

func identityFrom(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityKey).(*model.Identity)
	return id
}

// bearerCredential extracts the token from "Authorization: Bearer <token>"
func bearerCredential(r *http.Request) model.Credential {
	h := r.Header.Get("Authorization")
	for _, prefix := range []string{"Bearer ", "bearer ", "token "} {
		if token, ok := strings.CutPrefix(h, prefix); ok {
			return model.Credential(strings.TrimSpace(token))
		}
	}
	return ""
}

// AuthMiddleware admits requests whose bearer credential belongs to a member
// of the organization
func AuthMiddleware(accessUC interfaces.AccessUseCase) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := ctxlog.From(ctx)

			cred := bearerCredential(r)
			if cred == "" {
				writeAuthError(w, goerr.New("no credential provided", goerr.T(model.ErrTagAuth)))
				return
			}

			identity, err := accessUC.Authorize(ctx, cred)
			if err != nil {
				switch {
				case model.IsAuthError(err):
					logger.Info("Credential rejected", "error", err)
					writeAuthError(w, err)
				case goerr.HasTag(err, model.ErrTagForbidden):
					logger.Warn("Access denied", "error", err)
					writeError(w, goerr.New("Access denied. You must be a member of the organization."), http.StatusForbidden)
				default:
					logger.Error("Failed to authorize request", "error", err)
					writeError(w, goerr.New("failed to verify access"), http.StatusBadGateway)
				}
				return
			}

			ctx = context.WithValue(ctx, credentialKey, cred)
			ctx = context.WithValue(ctx, identityKey, identity)
			ctx = ctxlog.With(ctx, logger.With("login", identity.Login))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeJSON writes v with status
func writeJSON(w http.ResponseWriter, r *http.Request, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctxlog.From(r.Context()).Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); err != nil {
		// Can't get context here, so use background context
		ctxlog.From(context.Background()).Error("Failed to encode error response", "error", err)
	}
}

type authErrorResponse struct {
	Error  string `json:"error"`
	Reauth bool   `json:"reauth"`
}

// writeAuthError tells the client to sign in again
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	if err := json.NewEncoder(w).Encode(authErrorResponse{
		Error:  model.UserMessage(model.ErrorKindAuth),
		Reauth: true,
	}); err != nil {
		ctxlog.From(context.Background()).Error("Failed to encode error response", "error", err)
	}
}
