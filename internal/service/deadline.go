package service

import (
	"fmt"
	"time"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/sla"
)

// applySLA sets the due and warn instants of a new task.
func applySLA(task *domain.Task, cfg sla.Config) error {
	times, err := cfg.Compute(task.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDuration, err)
	}
	task.DueAt = times.DueAt
	task.WarnAt = times.WarnAt
	return nil
}

// minutesUntilDue returns the whole minutes left before the deadline, or 0
// for tasks without one.
func minutesUntilDue(task *domain.Task, now time.Time) int {
	if task.DueAt == nil {
		return 0
	}
	return sla.MinutesRemaining(*task.DueAt, now)
}
