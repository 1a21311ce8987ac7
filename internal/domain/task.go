package domain

import (
	"encoding/json"
	"time"

	"github.com/mtlprog/humantask/internal/form"
)

// TaskStatus represents the status of a task in the lifecycle state machine.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusExpired    TaskStatus = "expired"
	TaskStatusEscalated  TaskStatus = "escalated"
)

// OpenStatuses are the statuses the escalation sweep looks at.
var OpenStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusAssigned,
	TaskStatusInProgress,
}

// IsTerminal returns true if the status is terminal (no transitions allowed).
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled || s == TaskStatusExpired
}

// IsValid checks if the status is one of the allowed values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusCancelled, TaskStatusExpired, TaskStatusEscalated:
		return true
	default:
		return false
	}
}

// In reports whether s is one of the given statuses.
func (s TaskStatus) In(statuses ...TaskStatus) bool {
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// TaskPriority represents the priority level of a task.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// IsValid checks if the priority is one of the allowed values.
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	default:
		return false
	}
}

// BreachAction is what the escalation sweep does once a deadline passes
// and no escalation step applies.
type BreachAction string

const (
	BreachActionEscalate BreachAction = "escalate"
	BreachActionExpire   BreachAction = "expire"
)

// IsValid checks if the breach action is one of the allowed values.
func (a BreachAction) IsValid() bool {
	return a == BreachActionEscalate || a == BreachActionExpire
}

// Task is a unit of human work, optionally bound by an SLA.
type Task struct {
	ID          string
	TenantID    string
	Type        string
	Title       string
	Description string
	Priority    TaskPriority
	Status      TaskStatus

	FormSchema form.Schema
	FormData   map[string]any

	AssignedUserID  *string
	AssignedGroupID *string
	ClaimedBy       *string
	ClaimedAt       *time.Time

	DueAt            *time.Time
	WarnAt           *time.Time
	WarnedAt         *time.Time
	EscalationConfig json.RawMessage
	EscalationLevel  int
	BreachAction     BreachAction

	WorkflowID    *string
	WorkflowRunID *string

	CompletedBy *string
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Metadata  map[string]any
}

// IsClaimed reports whether a user currently holds the claim.
func (t *Task) IsClaimed() bool {
	return t.ClaimedBy != nil
}

// IsClaimedBy reports whether the given user holds the claim.
func (t *Task) IsClaimedBy(userID string) bool {
	return t.ClaimedBy != nil && *t.ClaimedBy == userID
}

// IsAssignedTo reports whether the task is directly assigned to the given user.
func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssignedUserID != nil && *t.AssignedUserID == userID
}

// HasGroupAssignment reports whether the task is assigned to a group.
func (t *Task) HasGroupAssignment() bool {
	return t.AssignedGroupID != nil
}

// IsDeleted reports whether the task has been soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// HasWorkflowLink reports whether the task is linked to a durable workflow run.
func (t *Task) HasWorkflowLink() bool {
	return t.WorkflowID != nil && *t.WorkflowID != ""
}

// Assignment returns the task's current assignment.
func (t *Task) Assignment() Assignment {
	return Assignment{UserID: t.AssignedUserID, GroupID: t.AssignedGroupID}
}

// ApplyAssignment replaces the assignment and drops any claim.
func (t *Task) ApplyAssignment(a Assignment) {
	t.AssignedUserID = a.UserID
	t.AssignedGroupID = a.GroupID
	t.ClearClaim()
}

// ClearClaim drops the current claim.
func (t *Task) ClearClaim() {
	t.ClaimedBy = nil
	t.ClaimedAt = nil
}

// IsOverdue reports whether the deadline has passed at the given instant.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueAt != nil && !now.Before(*t.DueAt)
}

// Clone returns a deep enough copy for store implementations that hand out
// tasks by value.
func (t *Task) Clone() *Task {
	c := *t
	c.FormSchema = t.FormSchema.Clone()
	c.FormData = cloneMap(t.FormData)
	c.Metadata = cloneMap(t.Metadata)
	if t.EscalationConfig != nil {
		c.EscalationConfig = append(json.RawMessage(nil), t.EscalationConfig...)
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
