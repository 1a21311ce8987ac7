// Package workflow delivers task lifecycle signals to linked durable
// workflow runs.
package workflow

import (
	"time"

	"github.com/mtlprog/humantask/internal/domain"
)

// Signal names understood by workflows that wait on a human task.
const (
	SignalTaskCompleted = "taskCompleted"
	SignalTaskCancelled = "taskCancelled"
	SignalTaskEscalated = "taskEscalated"
)

// TaskCompleted is the payload of SignalTaskCompleted.
type TaskCompleted struct {
	TaskID      string         `json:"taskId"`
	FormData    map[string]any `json:"formData"`
	CompletedBy string         `json:"completedBy"`
	CompletedAt time.Time      `json:"completedAt"`
}

// TaskCancelled is the payload of SignalTaskCancelled.
type TaskCancelled struct {
	TaskID      string    `json:"taskId"`
	Reason      string    `json:"reason,omitempty"`
	CancelledBy string    `json:"cancelledBy,omitempty"`
	CancelledAt time.Time `json:"cancelledAt"`
}

// TaskEscalated is the payload of SignalTaskEscalated.
type TaskEscalated struct {
	TaskID      string        `json:"taskId"`
	Reason      string        `json:"reason,omitempty"`
	EscalatedTo domain.Target `json:"escalatedTo"`
	EscalatedAt time.Time     `json:"escalatedAt"`
}
