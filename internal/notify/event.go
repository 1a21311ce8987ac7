// Package notify delivers task lifecycle notifications to one or more
// channels: a Kafka event stream, SES e-mail and the application log.
package notify

import (
	"context"
	"time"

	"github.com/mtlprog/humantask/internal/domain"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventTaskCreated   EventType = "taskCreated"
	EventTaskAssigned  EventType = "taskAssigned"
	EventTaskEscalated EventType = "taskEscalated"
	EventTaskCompleted EventType = "taskCompleted"
	EventSLAWarning    EventType = "slaWarning"
	EventSLABreach     EventType = "slaBreach"
)

// Event is the payload handed to every channel.
type Event struct {
	Type             EventType  `json:"type"`
	TaskID           string     `json:"taskId"`
	TenantID         string     `json:"tenantId"`
	TaskType         string     `json:"taskType"`
	Title            string     `json:"title"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	RecipientID      string     `json:"recipientId,omitempty"`
	RecipientGroupID string     `json:"recipientGroupId,omitempty"`
	AssignedGroupID  string     `json:"assignedGroupId,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	MinutesRemaining *int       `json:"minutesRemaining,omitempty"`
	DueAt            *time.Time `json:"dueAt,omitempty"`
	OccurredAt       time.Time  `json:"occurredAt"`
}

// Channel delivers events to one destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

func newEvent(kind EventType, task *domain.Task, at time.Time) Event {
	ev := Event{
		Type:        kind,
		TaskID:      task.ID,
		TenantID:    task.TenantID,
		TaskType:    task.Type,
		Title:       task.Title,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		RecipientID: recipient(task),
		DueAt:       task.DueAt,
		OccurredAt:  at,
	}
	if task.AssignedGroupID != nil {
		ev.AssignedGroupID = *task.AssignedGroupID
	}
	return ev
}

// recipient is whoever is currently working on the task: the claimant,
// else the directly assigned user.
func recipient(task *domain.Task) string {
	switch {
	case task.ClaimedBy != nil:
		return *task.ClaimedBy
	case task.AssignedUserID != nil:
		return *task.AssignedUserID
	default:
		return ""
	}
}
