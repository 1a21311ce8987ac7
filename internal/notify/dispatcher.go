package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mtlprog/humantask/internal/domain"
)

// Dispatcher fans lifecycle notifications out to its channels. A failing
// channel does not stop delivery to the others.
type Dispatcher struct {
	channels []Channel
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher over the given channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		now:      time.Now,
	}
}

// TaskCreated announces a new task.
func (d *Dispatcher) TaskCreated(ctx context.Context, task *domain.Task) error {
	return d.publish(ctx, d.event(EventTaskCreated, task))
}

// TaskAssigned tells userID a task was assigned to them.
func (d *Dispatcher) TaskAssigned(ctx context.Context, task *domain.Task, userID string) error {
	ev := d.event(EventTaskAssigned, task)
	ev.RecipientID = userID
	return d.publish(ctx, ev)
}

// TaskEscalated announces an escalation with its reason.
func (d *Dispatcher) TaskEscalated(ctx context.Context, task *domain.Task, reason string) error {
	ev := d.event(EventTaskEscalated, task)
	ev.Reason = reason
	return d.publish(ctx, ev)
}

// EscalationNotice addresses an escalation notice to the given target
// instead of the current assignee.
func (d *Dispatcher) EscalationNotice(ctx context.Context, task *domain.Task, to domain.Target, reason string) error {
	ev := d.event(EventTaskEscalated, task)
	ev.RecipientID = to.UserID
	ev.RecipientGroupID = to.GroupID
	ev.Reason = reason
	return d.publish(ctx, ev)
}

// TaskCompleted announces a completed task.
func (d *Dispatcher) TaskCompleted(ctx context.Context, task *domain.Task) error {
	return d.publish(ctx, d.event(EventTaskCompleted, task))
}

// SLAWarning warns that a deadline is near.
func (d *Dispatcher) SLAWarning(ctx context.Context, task *domain.Task, minutesRemaining int) error {
	ev := d.event(EventSLAWarning, task)
	ev.MinutesRemaining = &minutesRemaining
	return d.publish(ctx, ev)
}

// SLABreach announces a missed deadline.
func (d *Dispatcher) SLABreach(ctx context.Context, task *domain.Task) error {
	return d.publish(ctx, d.event(EventSLABreach, task))
}

func (d *Dispatcher) event(kind EventType, task *domain.Task) Event {
	return newEvent(kind, task, d.now().UTC())
}

func (d *Dispatcher) publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
