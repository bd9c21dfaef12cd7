// internal/api/handler.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github-activity-sync/internal/database"
	"github-activity-sync/internal/model"
)

// Handler is the container for API dependencies.
type Handler struct {
	db     database.Querier
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db database.Querier, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos", h.listRepositories)
		r.Route("/repos/{owner}/{name}", func(r chi.Router) {
			r.Get("/commits", h.getCommits)
			r.Get("/pulls", h.getPullRequests)
			r.Get("/issues", h.getIssues)
			r.Get("/reviews", h.getReviews)
			r.Get("/stats/top-committers", h.getTopCommitters)
		})
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listRepositories returns every tracked repository.
// GET /v1/repos
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.db.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// lookupRepo resolves the {owner}/{name} path parameters to a stored
// repository, writing the error response itself on failure.
func (h *Handler) lookupRepo(w http.ResponseWriter, r *http.Request) (model.Repository, bool) {
	name := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	repo, err := h.db.GetRepositoryByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return model.Repository{}, false
		}
		h.logger.Error("Failed to get repository", "repo", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return model.Repository{}, false
	}
	return repo, true
}

// GET /v1/repos/{owner}/{name}/commits
func (h *Handler) getCommits(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}
	commits, err := h.db.GetCommitsByRepoID(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to get commits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, commits)
}

// GET /v1/repos/{owner}/{name}/pulls
func (h *Handler) getPullRequests(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}
	prs, err := h.db.GetPullRequestsByRepoID(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to get pull requests", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, prs)
}

// GET /v1/repos/{owner}/{name}/issues
func (h *Handler) getIssues(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}
	issues, err := h.db.GetIssuesByRepoID(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to get issues", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, issues)
}

// GET /v1/repos/{owner}/{name}/reviews
func (h *Handler) getReviews(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}
	reviews, err := h.db.GetReviewsByRepoID(r.Context(), repo.ID)
	if err != nil {
		h.logger.Error("Failed to get reviews", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, reviews)
}

// getTopCommitters handles the request for top commit authors.
// GET /v1/repos/{owner}/{name}/stats/top-committers?limit=N
func (h *Handler) getTopCommitters(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "10" // Default limit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return
	}

	repo, ok := h.lookupRepo(w, r)
	if !ok {
		return
	}

	authors, err := h.db.GetTopCommitAuthors(r.Context(), repo.ID, int32(limit))
	if err != nil {
		h.logger.Error("Failed to get top commit authors", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, authors)
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
