package dto

import "encoding/json"

// TargetRequest names a user or group to route a task to.
type TargetRequest struct {
	UserID  string `json:"user_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

// SLARequest is the SLA attached to a new task.
type SLARequest struct {
	Deadline   string `json:"deadline,omitempty"`
	WarnBefore string `json:"warn_before,omitempty"`
}

// CreateTaskRequest represents the request body for POST /tasks.
type CreateTaskRequest struct {
	Type             string          `json:"type"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Priority         string          `json:"priority,omitempty"`
	FormSchema       json.RawMessage `json:"form_schema,omitempty"`
	AssignTo         TargetRequest   `json:"assign_to"`
	SLA              SLARequest      `json:"sla"`
	EscalationConfig json.RawMessage `json:"escalation_config,omitempty"`
	BreachAction     string          `json:"breach_action,omitempty"`
	WorkflowID       string          `json:"workflow_id,omitempty"`
	WorkflowRunID    string          `json:"workflow_run_id,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// CompleteTaskRequest represents the request body for POST /tasks/:id/complete.
type CompleteTaskRequest struct {
	FormData map[string]any `json:"form_data"`
}

// ReassignTaskRequest represents the request body for POST /tasks/:id/reassign.
type ReassignTaskRequest struct {
	TargetRequest
	Reason string `json:"reason,omitempty"`
}

// CancelTaskRequest represents the request body for POST /tasks/:id/cancel.
type CancelTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

// EscalateTaskRequest represents the request body for POST /tasks/:id/escalate.
// The target is optional.
type EscalateTaskRequest struct {
	Reason   string         `json:"reason,omitempty"`
	Escalate *TargetRequest `json:"escalate_to,omitempty"`
}

// UpsertUserRequest represents the request body for PUT /directory/users/:id.
type UpsertUserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}
