package dto

import (
	"encoding/json"
	"time"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/form"
	"github.com/mtlprog/humantask/internal/repository"
	"github.com/mtlprog/humantask/internal/sla"
)

// TaskDetail represents the full task object.
type TaskDetail struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	Type             string          `json:"type"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Priority         string          `json:"priority"`
	Status           string          `json:"status"`
	FormSchema       form.Schema     `json:"form_schema,omitempty"`
	FormData         map[string]any  `json:"form_data,omitempty"`
	AssignedUserID   *string         `json:"assigned_user_id"`
	AssignedGroupID  *string         `json:"assigned_group_id"`
	ClaimedBy        *string         `json:"claimed_by"`
	ClaimedAt        *time.Time      `json:"claimed_at"`
	DueAt            *time.Time      `json:"due_at"`
	WarnAt           *time.Time      `json:"warn_at"`
	TimeRemaining    string          `json:"time_remaining,omitempty"`
	IsOverdue        bool            `json:"is_overdue"`
	EscalationConfig json.RawMessage `json:"escalation_config,omitempty"`
	EscalationLevel  int             `json:"escalation_level"`
	BreachAction     string          `json:"breach_action"`
	WorkflowID       *string         `json:"workflow_id"`
	WorkflowRunID    *string         `json:"workflow_run_id"`
	CompletedBy      *string         `json:"completed_by"`
	CompletedAt      *time.Time      `json:"completed_at"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
}

// TasksListResponse represents the response for GET /tasks.
type TasksListResponse struct {
	Tasks  []TaskDetail `json:"tasks"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// HistoryEntry represents one audit log entry.
type HistoryEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	UserID    *string        `json:"user_id"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// HistoryResponse represents the response for GET /tasks/:id/history.
type HistoryResponse struct {
	TaskID  string         `json:"task_id"`
	Entries []HistoryEntry `json:"entries"`
}

// StatsResponse represents the response for GET /stats.
type StatsResponse struct {
	Total          int            `json:"total"`
	TasksByStatus  map[string]int `json:"tasks_by_status"`
	OverdueCount   int            `json:"overdue_count"`
	EscalatedCount int            `json:"escalated_count"`
}

// SweepResponse reports the outcome of a sweep run.
type SweepResponse struct {
	Processed int    `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// ToTaskDetail converts a domain task to its response form.
func ToTaskDetail(task *domain.Task, now time.Time) TaskDetail {
	detail := TaskDetail{
		ID:               task.ID,
		TenantID:         task.TenantID,
		Type:             task.Type,
		Title:            task.Title,
		Description:      task.Description,
		Priority:         string(task.Priority),
		Status:           string(task.Status),
		FormSchema:       task.FormSchema,
		FormData:         task.FormData,
		AssignedUserID:   task.AssignedUserID,
		AssignedGroupID:  task.AssignedGroupID,
		ClaimedBy:        task.ClaimedBy,
		ClaimedAt:        task.ClaimedAt,
		DueAt:            task.DueAt,
		WarnAt:           task.WarnAt,
		EscalationConfig: task.EscalationConfig,
		EscalationLevel:  task.EscalationLevel,
		BreachAction:     string(task.BreachAction),
		WorkflowID:       task.WorkflowID,
		WorkflowRunID:    task.WorkflowRunID,
		CompletedBy:      task.CompletedBy,
		CompletedAt:      task.CompletedAt,
		Metadata:         task.Metadata,
		CreatedAt:        task.CreatedAt,
		UpdatedAt:        task.UpdatedAt,
		DeletedAt:        task.DeletedAt,
	}

	if task.DueAt != nil && task.Status.In(domain.OpenStatuses...) {
		detail.IsOverdue = task.IsOverdue(now)
		detail.TimeRemaining = sla.FormatUntil(*task.DueAt, now)
	}

	return detail
}

// ToHistoryResponse converts history entries to their response form.
func ToHistoryResponse(taskID string, entries []*domain.TaskHistoryEntry) HistoryResponse {
	resp := HistoryResponse{
		TaskID:  taskID,
		Entries: make([]HistoryEntry, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = HistoryEntry{
			ID:        e.ID,
			Action:    string(e.Action),
			UserID:    e.UserID,
			Data:      e.Data,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp
}

// ToStatsResponse converts tenant statistics to their response form.
func ToStatsResponse(stats *repository.TenantStats) StatsResponse {
	byStatus := make(map[string]int, len(stats.TasksByStatus))
	for status, n := range stats.TasksByStatus {
		byStatus[string(status)] = n
	}
	return StatsResponse{
		Total:          stats.Total,
		TasksByStatus:  byStatus,
		OverdueCount:   stats.OverdueCount,
		EscalatedCount: stats.EscalatedCount,
	}
}

// DirectoryUser represents a directory user.
type DirectoryUser struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// ToDirectoryUser converts a directory user to its response form.
func ToDirectoryUser(user *domain.DirectoryUser) DirectoryUser {
	return DirectoryUser{
		UserID:      user.UserID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsActive:    user.IsActive,
	}
}
