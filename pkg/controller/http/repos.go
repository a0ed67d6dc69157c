package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// RepositoryHandler serves release delta results
type RepositoryHandler struct {
	dashboardUC interfaces.DashboardUseCase
	configured  []model.RepositoryRef
}

type batchRequest struct {
	Repos   []model.RepositoryRef `json:"repos"`
	Refresh bool                  `json:"refresh"`
}

func refreshRequested(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}

// Batch handles POST /api/repos/batch
func (h *RepositoryHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, goerr.Wrap(err, "invalid JSON body"), http.StatusBadRequest)
		return
	}
	if req.Repos == nil {
		writeError(w, goerr.New("repos must be an array"), http.StatusBadRequest)
		return
	}
	for _, repo := range req.Repos {
		if err := repo.Validate(); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
	}

	h.serve(w, r, req.Repos, req.Refresh)
}

// Configured handles GET /api/repos
func (h *RepositoryHandler) Configured(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.configured, refreshRequested(r))
}

// Single handles GET /api/repo/{owner}/{repo}
func (h *RepositoryHandler) Single(w http.ResponseWriter, r *http.Request) {
	repo := model.RepositoryRef{Owner: chi.URLParam(r, "owner"), Name: chi.URLParam(r, "repo")}
	if err := repo.Validate(); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	results, ok := h.fetch(w, r, []model.RepositoryRef{repo}, refreshRequested(r))
	if !ok {
		return
	}

	result := results[0]
	status := http.StatusOK
	if result.IsError() {
		status = result.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, r, result, status)
}

// Usage handles GET /api/usage
func (h *RepositoryHandler) Usage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.dashboardUC.Usage(), http.StatusOK)
}

func (h *RepositoryHandler) serve(w http.ResponseWriter, r *http.Request, repos []model.RepositoryRef, refresh bool) {
	results, ok := h.fetch(w, r, repos, refresh)
	if !ok {
		return
	}
	writeJSON(w, r, results, http.StatusOK)
}

func (h *RepositoryHandler) fetch(w http.ResponseWriter, r *http.Request, repos []model.RepositoryRef, refresh bool) ([]*model.RepositoryResult, bool) {
	ctx := r.Context()

	if repos == nil {
		repos = []model.RepositoryRef{}
	}
	results, err := h.dashboardUC.FetchAll(ctx, credentialFrom(ctx), repos, refresh)
	if err != nil {
		if model.IsAuthError(err) {
			writeAuthError(w, err)
			return nil, false
		}
		ctxlog.From(ctx).Error("Failed to fetch repositories", "error", err)
		writeError(w, goerr.New(model.UserMessage(model.KindOf(err))), http.StatusInternalServerError)
		return nil, false
	}

	return results, true
}
