package sla

import (
	"fmt"
	"time"
)

// Config is the SLA attached to a task at creation time.
type Config struct {
	Deadline   string `json:"deadline,omitempty"`
	WarnBefore string `json:"warnBefore,omitempty"`
}

// Times are the absolute instants derived from a Config.
type Times struct {
	DueAt  *time.Time
	WarnAt *time.Time
}

// Compute derives the due and warn instants for a task created at createdAt.
// An empty deadline yields no SLA; a warnBefore without a deadline is rejected.
func (c Config) Compute(createdAt time.Time) (Times, error) {
	if c.Deadline == "" {
		if c.WarnBefore != "" {
			return Times{}, fmt.Errorf("%w: warnBefore %q requires a deadline", ErrInvalidDuration, c.WarnBefore)
		}
		return Times{}, nil
	}

	due, err := Deadline(createdAt, c.Deadline)
	if err != nil {
		return Times{}, fmt.Errorf("deadline: %w", err)
	}
	times := Times{DueAt: &due}

	if c.WarnBefore != "" {
		warn, err := WarnAt(due, c.WarnBefore)
		if err != nil {
			return Times{}, fmt.Errorf("warnBefore: %w", err)
		}
		times.WarnAt = &warn
	}

	return times, nil
}
