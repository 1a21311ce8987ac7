package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/handler/dto"
	"github.com/mtlprog/humantask/internal/middleware"
	"github.com/mtlprog/humantask/internal/service"
)

// Directory manages the users and groups tasks are routed to.
type Directory interface {
	GetUser(ctx context.Context, tenantID, userID string) (*domain.DirectoryUser, error)
	UpsertUser(ctx context.Context, user domain.DirectoryUser) error
	AddGroupMember(ctx context.Context, tenantID, groupID, userID string) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	tasks     *service.TaskService
	directory Directory
	pinger    Pinger
	now       func() time.Time
}

// New creates a new Handler. A nil pinger makes the health check always pass.
func New(tasks *service.TaskService, directory Directory, pinger Pinger) *Handler {
	return &Handler{
		tasks:     tasks,
		directory: directory,
		pinger:    pinger,
		now:       time.Now,
	}
}

// Routes builds the HTTP router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.HeaderTenantID, middleware.HeaderUserID},
	}))

	r.Get("/healthz", h.handleHealthz)

	// Swagger UI
	r.Get("/swagger/*", httpSwagger.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Get("/tasks", h.handleListTasks)
		r.Post("/tasks", h.handleCreateTask)
		r.Get("/tasks/{id}", h.handleGetTask)
		r.Delete("/tasks/{id}", h.handleDeleteTask)
		r.Get("/tasks/{id}/history", h.handleTaskHistory)
		r.Post("/tasks/{id}/claim", h.handleClaimTask)
		r.Post("/tasks/{id}/unclaim", h.handleUnclaimTask)
		r.Post("/tasks/{id}/complete", h.handleCompleteTask)
		r.Post("/tasks/{id}/reassign", h.handleReassignTask)
		r.Post("/tasks/{id}/cancel", h.handleCancelTask)
		r.Post("/tasks/{id}/escalate", h.handleEscalateTask)
		r.Post("/tasks/{id}/expire", h.handleExpireTask)

		r.Get("/stats", h.handleGetStats)
		r.Post("/sweeps/escalations", h.handleRunEscalations)
		r.Post("/sweeps/warnings", h.handleRunWarnings)

		r.Get("/directory/users/{userId}", h.handleGetUser)
		r.Put("/directory/users/{userId}", h.handleUpsertUser)
		r.Put("/directory/groups/{groupId}/members/{userId}", h.handleAddGroupMember)
	})

	return r
}

// handleHealthz returns 200 OK if the store is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			slog.Error("database health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.NewErrorResponse(code, message))
}

// respondDomainError maps err to a status and writes it.
func respondDomainError(w http.ResponseWriter, err error) {
	status, resp := dto.NewDomainErrorResponse(err)
	respondJSON(w, status, resp)
}

// requestContext returns the caller identity set by middleware.Identity.
func requestContext(w http.ResponseWriter, r *http.Request) (domain.RequestContext, bool) {
	rc, ok := middleware.GetRequestContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
		return domain.RequestContext{}, false
	}
	return rc, true
}

// extractTaskID extracts and validates task ID from path parameter.
// Returns (taskID, true) if valid, ("", false) if invalid (error already sent to client).
func extractTaskID(w http.ResponseWriter, r *http.Request) (string, bool) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "task id is required")
		return "", false
	}

	if _, err := uuid.Parse(taskID); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "task id must be a valid UUID")
		return "", false
	}

	return taskID, true
}

// decodeBody decodes a JSON body. An empty body leaves dst untouched when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	return false
}
