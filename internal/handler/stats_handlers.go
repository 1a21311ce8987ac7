package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/handler/dto"
)

// handleGetStats returns task statistics of the caller's tenant.
// @Summary Get statistics
// @Tags stats
// @Produce json
// @Success 200 {object} dto.StatsResponse
// @Security TenantAuth
// @Router /stats [get]
func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	stats, err := h.tasks.Stats(r.Context(), rc)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToStatsResponse(stats))
}

// handleRunEscalations runs one escalation sweep for the caller's tenant.
// Per-task failures are reported alongside the processed count.
// @Summary Run an escalation sweep
// @Tags sweeps
// @Produce json
// @Success 200 {object} dto.SweepResponse
// @Security TenantAuth
// @Router /sweeps/escalations [post]
func (h *Handler) handleRunEscalations(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.tasks.ProcessEscalations)
}

// handleRunWarnings runs one SLA warning sweep for the caller's tenant.
// @Summary Run an SLA warning sweep
// @Tags sweeps
// @Produce json
// @Success 200 {object} dto.SweepResponse
// @Security TenantAuth
// @Router /sweeps/warnings [post]
func (h *Handler) handleRunWarnings(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.tasks.ProcessWarnings)
}

func (h *Handler) sweep(
	w http.ResponseWriter,
	r *http.Request,
	run func(ctx context.Context, tenantID string) (int, error),
) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	count, err := run(r.Context(), rc.TenantID)
	if errors.Is(err, domain.ErrValidation) {
		respondDomainError(w, err)
		return
	}

	resp := dto.SweepResponse{Processed: count}
	if err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetUser returns a directory user.
// @Summary Get a directory user
// @Tags directory
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} dto.DirectoryUser
// @Failure 404 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /directory/users/{userId} [get]
func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	user, err := h.directory.GetUser(r.Context(), rc.TenantID, chi.URLParam(r, "userId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToDirectoryUser(user))
}

// handleUpsertUser creates or replaces a directory user.
// @Summary Create or replace a directory user
// @Tags directory
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body dto.UpsertUserRequest true "User details"
// @Success 200 {object} dto.DirectoryUser
// @Failure 400 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /directory/users/{userId} [put]
func (h *Handler) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	var req dto.UpsertUserRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	user := domain.DirectoryUser{
		TenantID:    rc.TenantID,
		UserID:      chi.URLParam(r, "userId"),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.directory.UpsertUser(r.Context(), user); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToDirectoryUser(&user))
}

// handleAddGroupMember adds a user to a group.
// @Summary Add a user to a group
// @Tags directory
// @Param groupId path string true "Group ID"
// @Param userId path string true "User ID"
// @Success 204
// @Security TenantAuth
// @Router /directory/groups/{groupId}/members/{userId} [put]
func (h *Handler) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	groupID := chi.URLParam(r, "groupId")
	userID := chi.URLParam(r, "userId")
	if err := h.directory.AddGroupMember(r.Context(), rc.TenantID, groupID, userID); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
