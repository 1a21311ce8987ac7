package notify

import (
	"context"
	"log/slog"
)

// LogChannel writes events to the application log.
type LogChannel struct{}

// Name implements Channel.
func (LogChannel) Name() string { return "log" }

// Deliver implements Channel.
func (LogChannel) Deliver(ctx context.Context, event Event) error {
	attrs := []any{
		"event", event.Type,
		"task_id", event.TaskID,
		"tenant_id", event.TenantID,
		"status", event.Status,
	}
	if event.RecipientID != "" {
		attrs = append(attrs, "recipient", event.RecipientID)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	if event.MinutesRemaining != nil {
		attrs = append(attrs, "minutes_remaining", *event.MinutesRemaining)
	}
	slog.InfoContext(ctx, "task notification", attrs...)
	return nil
}
