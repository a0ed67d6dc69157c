package http

import (
	"net/http"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
	"github.com/m-mizutani/relwatch/pkg/domain/types"
)

// handleHealth handles health check requests
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, &model.HealthStatus{
		Status:  "healthy",
		Service: types.ServiceName,
		Version: types.Version,
	}, http.StatusOK)
}

// handleMe returns the identity admitted by AuthMiddleware
func handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, identityFrom(r.Context()), http.StatusOK)
}
