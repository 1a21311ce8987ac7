package domain

import "time"

// HistoryAction is the kind of mutation recorded in task history.
type HistoryAction string

const (
	HistoryActionCreated            HistoryAction = "created"
	HistoryActionClaimed            HistoryAction = "claimed"
	HistoryActionUnclaimed          HistoryAction = "unclaimed"
	HistoryActionCompleted          HistoryAction = "completed"
	HistoryActionReassigned         HistoryAction = "reassigned"
	HistoryActionCancelled          HistoryAction = "cancelled"
	HistoryActionExpired            HistoryAction = "expired"
	HistoryActionEscalated          HistoryAction = "escalated"
	HistoryActionEscalationNotified HistoryAction = "escalation_notified"
	HistoryActionSLAWarning         HistoryAction = "sla_warning"
	HistoryActionDeleted            HistoryAction = "deleted"
)

// HistoryOrder selects the ordering of a history listing.
type HistoryOrder string

const (
	HistoryOrderAsc  HistoryOrder = "asc"
	HistoryOrderDesc HistoryOrder = "desc"
)

// TaskHistoryEntry is an immutable audit log entry for a task mutation.
type TaskHistoryEntry struct {
	ID        string
	TaskID    string
	TenantID  string
	Action    HistoryAction
	UserID    *string // nil for system actions
	Data      map[string]any
	CreatedAt time.Time
}

// IsSystemAction returns true if the entry was written by the system.
func (e *TaskHistoryEntry) IsSystemAction() bool {
	return e.UserID == nil
}
