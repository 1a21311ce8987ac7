package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/form"
	"github.com/mtlprog/humantask/internal/handler/dto"
	"github.com/mtlprog/humantask/internal/repository"
	"github.com/mtlprog/humantask/internal/service"
	"github.com/mtlprog/humantask/internal/sla"
)

// handleCreateTask creates a new task. Tasks with an assignment start in
// assigned, the rest in pending.
// @Summary Create a task
// @Description Creates a task with an optional form schema, SLA and escalation chain.
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body dto.CreateTaskRequest true "Task creation request"
// @Success 201 {object} dto.TaskDetail
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks [post]
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	schema, err := form.Parse(req.FormSchema)
	if err != nil {
		respondDomainError(w, fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err))
		return
	}

	task, err := h.tasks.CreateTask(ctx, rc, service.CreateTaskParams{
		Type:             req.Type,
		Title:            req.Title,
		Description:      req.Description,
		Priority:         domain.TaskPriority(req.Priority),
		FormSchema:       schema,
		Target:           domain.Target{UserID: req.AssignTo.UserID, GroupID: req.AssignTo.GroupID},
		SLA:              sla.Config{Deadline: req.SLA.Deadline, WarnBefore: req.SLA.WarnBefore},
		EscalationConfig: req.EscalationConfig,
		BreachAction:     domain.BreachAction(req.BreachAction),
		WorkflowID:       req.WorkflowID,
		WorkflowRunID:    req.WorkflowRunID,
		Metadata:         req.Metadata,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.ToTaskDetail(task, h.now()))
}

// handleGetTask retrieves task details. ?include_deleted=true also returns
// soft-deleted tasks.
// @Summary Get task details
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Param include_deleted query bool false "Also return soft-deleted tasks"
// @Success 200 {object} dto.TaskDetail
// @Failure 404 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks/{id} [get]
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	taskID, ok := extractTaskID(w, r)
	if !ok {
		return
	}

	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	task, err := h.tasks.FindByID(r.Context(), rc, taskID, includeDeleted)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleDeleteTask soft-deletes a task, or purges it with ?hard=true.
// @Summary Delete a task
// @Description Soft-deletes a task. hard=true purges it with its history and requires X-User-ID.
// @Tags tasks
// @Param id path string true "Task ID"
// @Param hard query bool false "Purge the task"
// @Success 204
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security TenantAuth
// @Security UserAuth
// @Router /tasks/{id} [delete]
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	taskID, ok := extractTaskID(w, r)
	if !ok {
		return
	}

	var err error
	if r.URL.Query().Get("hard") == "true" {
		err = h.tasks.HardDelete(r.Context(), rc, taskID)
	} else {
		err = h.tasks.SoftDelete(r.Context(), rc, taskID)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTaskHistory returns the audit history of a task.
// ?order=desc returns the newest entries first.
// @Summary Get task history
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Param order query string false "asc (default) or desc"
// @Success 200 {object} dto.HistoryResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks/{id}/history [get]
func (h *Handler) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	taskID, ok := extractTaskID(w, r)
	if !ok {
		return
	}

	order := domain.HistoryOrder(r.URL.Query().Get("order"))
	entries, err := h.tasks.History(r.Context(), rc, taskID, order)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToHistoryResponse(taskID, entries))
}

// handleClaimTask gives the caller exclusive ownership of a task.
// @Summary Claim a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} dto.TaskDetail
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security TenantAuth
// @Security UserAuth
// @Router /tasks/{id}/claim [post]
func (h *Handler) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Claim(r.Context(), rc, taskID)
	})
}

// handleUnclaimTask releases the caller's claim.
// @Summary Release a claim
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} dto.TaskDetail
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security TenantAuth
// @Security UserAuth
// @Router /tasks/{id}/unclaim [post]
func (h *Handler) handleUnclaimTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Unclaim(r.Context(), rc, taskID)
	})
}

// handleCompleteTask submits form data and completes the task.
// @Summary Complete a task
// @Description Validates form data against the task schema and completes the task.
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body dto.CompleteTaskRequest false "Form data"
// @Success 200 {object} dto.TaskDetail
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security TenantAuth
// @Security UserAuth
// @Router /tasks/{id}/complete [post]
func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req dto.CompleteTaskRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Complete(r.Context(), rc, taskID, req.FormData)
	})
}

// handleReassignTask routes a task to another user or group. An empty
// target returns the task to pending.
// @Summary Reassign a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body dto.ReassignTaskRequest false "New target"
// @Success 200 {object} dto.TaskDetail
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks/{id}/reassign [post]
func (h *Handler) handleReassignTask(w http.ResponseWriter, r *http.Request) {
	var req dto.ReassignTaskRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	target := domain.Target{UserID: req.UserID, GroupID: req.GroupID}
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Reassign(r.Context(), rc, taskID, target, req.Reason)
	})
}

// handleCancelTask cancels a task.
// @Summary Cancel a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body dto.CancelTaskRequest false "Cancellation reason"
// @Success 200 {object} dto.TaskDetail
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks/{id}/cancel [post]
func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelTaskRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Cancel(r.Context(), rc, taskID, req.Reason)
	})
}

// handleEscalateTask escalates a task manually.
// @Summary Escalate a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body dto.EscalateTaskRequest false "Escalation target and reason"
// @Success 200 {object} dto.TaskDetail
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks/{id}/escalate [post]
func (h *Handler) handleEscalateTask(w http.ResponseWriter, r *http.Request) {
	var req dto.EscalateTaskRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	var explicit *domain.Target
	if req.Escalate != nil {
		explicit = &domain.Target{UserID: req.Escalate.UserID, GroupID: req.Escalate.GroupID}
	}
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Escalate(r.Context(), rc, taskID, req.Reason, explicit)
	})
}

// handleExpireTask expires an open task.
// @Summary Expire a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} dto.TaskDetail
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security TenantAuth
// @Router /tasks/{id}/expire [post]
func (h *Handler) handleExpireTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(rc domain.RequestContext, taskID string) (*domain.Task, error) {
		return h.tasks.Expire(r.Context(), rc, taskID)
	})
}

// transition runs a lifecycle operation on the task named in the path and
// writes the updated task.
func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(rc domain.RequestContext, taskID string) (*domain.Task, error),
) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	taskID, ok := extractTaskID(w, r)
	if !ok {
		return
	}

	task, err := op(rc, taskID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskDetail(task, h.now()))
}

// handleListTasks returns a page of tasks with filters.
//
// Query parameters: status and priority take comma-separated lists;
// assigned_user and claimed_by accept "me"; assigned_group; overdue and
// include_deleted are booleans; sort takes fields like "-priority,due_at";
// limit (1-200, default 50) and offset page the result.
// @Summary List tasks
// @Tags tasks
// @Produce json
// @Param status query string false "Comma-separated statuses"
// @Param priority query string false "Comma-separated priorities"
// @Param assigned_user query string false "User ID or me"
// @Param assigned_group query string false "Group ID"
// @Param claimed_by query string false "User ID or me"
// @Param overdue query bool false "Only tasks past their deadline"
// @Param include_deleted query bool false "Include soft-deleted tasks"
// @Param sort query string false "Sort fields, e.g. -priority,due_at"
// @Param limit query int false "Page size (1-200, default 50)"
// @Param offset query int false "Page offset"
// @Success 200 {object} dto.TasksListResponse
// @Security TenantAuth
// @Router /tasks [get]
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filters := repository.TaskListFilters{
		Overdue:        query.Get("overdue") == "true",
		IncludeDeleted: query.Get("include_deleted") == "true",
		Sort:           splitAndTrim(query.Get("sort"), ","),
	}

	for _, s := range splitAndTrim(query.Get("status"), ",") {
		filters.Statuses = append(filters.Statuses, domain.TaskStatus(s))
	}
	for _, p := range splitAndTrim(query.Get("priority"), ",") {
		filters.Priorities = append(filters.Priorities, domain.TaskPriority(p))
	}

	filters.AssignedUserID = userFilter(rc, query.Get("assigned_user"))
	filters.ClaimedBy = userFilter(rc, query.Get("claimed_by"))
	if group := query.Get("assigned_group"); group != "" {
		filters.AssignedGroupID = &group
	}

	if limitParam := query.Get("limit"); limitParam != "" {
		if n, err := strconv.Atoi(limitParam); err == nil && n > 0 {
			filters.Limit = n
		}
	}
	if offsetParam := query.Get("offset"); offsetParam != "" {
		if n, err := strconv.Atoi(offsetParam); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	results, total, err := h.tasks.List(r.Context(), rc, filters)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = service.DefaultListLimit
	}
	if limit > service.MaxListLimit {
		limit = service.MaxListLimit
	}

	now := h.now()
	tasks := make([]dto.TaskDetail, len(results))
	for i, task := range results {
		tasks[i] = dto.ToTaskDetail(task, now)
	}

	respondJSON(w, http.StatusOK, dto.TasksListResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: filters.Offset,
	})
}

// userFilter resolves "me" to the caller.
func userFilter(rc domain.RequestContext, param string) *string {
	switch {
	case param == "":
		return nil
	case param == "me" && rc.UserID != nil:
		id := *rc.UserID
		return &id
	default:
		return &param
	}
}

// splitAndTrim splits a string by delimiter and trims whitespace.
func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
