// Package escalation decides whether and how a task escalates, given the
// time elapsed since creation and the task's configured escalation chain.
package escalation

import (
	"encoding/json"
	"fmt"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/sla"
)

// Action is what an escalation step does when it fires.
type Action string

const (
	ActionNotify   Action = "notify"
	ActionReassign Action = "reassign"
	ActionEscalate Action = "escalate"
)

// IsValid checks if the action is one of the allowed values.
func (a Action) IsValid() bool {
	return a == ActionNotify || a == ActionReassign || a == ActionEscalate
}

// Step fires once the time elapsed since task creation reaches After.
type Step struct {
	After       string
	AfterMillis int64
	Action      Action
	Target      domain.Target
	Message     string
}

// Chain is an ordered sequence of escalation steps.
type Chain []Step

// Len returns the number of steps.
func (c Chain) Len() int {
	return len(c)
}

// storedStep is the persisted representation of a step.
type storedStep struct {
	After     string `json:"after"`
	Action    Action `json:"action,omitempty"`
	ToUserID  string `json:"toUserId,omitempty"`
	ToGroupID string `json:"toGroupId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Validate checks a stored configuration: it must be an array of step
// objects, each with a parseable after duration and a toUserId or toGroupId.
// A missing action defaults to escalate. Notify steps may omit the target,
// in which case the current assignee is notified.
func Validate(raw json.RawMessage) (Chain, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}

	var stored []storedStep
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEscalation, err)
	}

	chain := make(Chain, 0, len(stored))
	for i, s := range stored {
		ms, err := sla.ParseMillis(s.After)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", domain.ErrInvalidEscalation, i, err)
		}
		action := s.Action
		if action == "" {
			action = ActionEscalate
		}
		if !action.IsValid() {
			return nil, fmt.Errorf("%w: step %d: unknown action %q", domain.ErrInvalidEscalation, i, s.Action)
		}
		if s.ToUserID == "" && s.ToGroupID == "" && action != ActionNotify {
			return nil, fmt.Errorf("%w: step %d: toUserId or toGroupId is required", domain.ErrInvalidEscalation, i)
		}
		chain = append(chain, Step{
			After:       s.After,
			AfterMillis: ms,
			Action:      action,
			Target:      domain.Target{UserID: s.ToUserID, GroupID: s.ToGroupID},
			Message:     s.Message,
		})
	}
	return chain, nil
}

// ParseConfig reads a stored configuration. Malformed configurations are
// treated as having no escalation chain.
func ParseConfig(raw json.RawMessage) Chain {
	chain, err := Validate(raw)
	if err != nil {
		return nil
	}
	return chain
}

// Marshal encodes the chain in its stored representation.
func (c Chain) Marshal() (json.RawMessage, error) {
	if len(c) == 0 {
		return nil, nil
	}
	stored := make([]storedStep, len(c))
	for i, step := range c {
		stored[i] = storedStep{
			After:     step.After,
			Action:    step.Action,
			ToUserID:  step.Target.UserID,
			ToGroupID: step.Target.GroupID,
			Message:   step.Message,
		}
	}
	return json.Marshal(stored)
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := string(raw)
	return len(raw) == 0 || s == "null" || s == "[]"
}

// Builder assembles a chain fluently:
//
//	escalation.NewChain().
//		After("15m").Notify("still open").
//		After("30m").EscalateTo(domain.Target{GroupID: "leads"}).
//		Build()
type Builder struct {
	steps []Step
	after string
	err   error
}

// NewChain starts an empty chain.
func NewChain() *Builder {
	return &Builder{}
}

// After sets the threshold for the next step.
func (b *Builder) After(d string) *Builder {
	if b.err != nil {
		return b
	}
	if b.after != "" {
		b.err = fmt.Errorf("%w: after(%q) has no action", domain.ErrInvalidEscalation, b.after)
		return b
	}
	b.after = d
	return b
}

// Notify adds a step that only notifies. Without a target the current
// assignee is notified.
func (b *Builder) Notify(message string) *Builder {
	return b.add(ActionNotify, domain.Target{}, message)
}

// NotifyTo adds a notify step addressed to target.
func (b *Builder) NotifyTo(target domain.Target, message string) *Builder {
	return b.add(ActionNotify, target, message)
}

// ReassignTo adds a step that moves the task to target.
func (b *Builder) ReassignTo(target domain.Target) *Builder {
	return b.add(ActionReassign, target, "")
}

// EscalateTo adds a step that escalates the task to target.
func (b *Builder) EscalateTo(target domain.Target) *Builder {
	return b.add(ActionEscalate, target, "")
}

// WithMessage sets the message of the last added step.
func (b *Builder) WithMessage(message string) *Builder {
	if b.err == nil && len(b.steps) > 0 {
		b.steps[len(b.steps)-1].Message = message
	}
	return b
}

func (b *Builder) add(action Action, target domain.Target, message string) *Builder {
	if b.err != nil {
		return b
	}
	if b.after == "" {
		b.err = fmt.Errorf("%w: %s step without after()", domain.ErrInvalidEscalation, action)
		return b
	}
	ms, err := sla.ParseMillis(b.after)
	if err != nil {
		b.err = fmt.Errorf("%w: %v", domain.ErrInvalidEscalation, err)
		return b
	}
	if action != ActionNotify && target.IsEmpty() {
		b.err = fmt.Errorf("%w: %s step after %s needs a target", domain.ErrInvalidEscalation, action, b.after)
		return b
	}
	b.steps = append(b.steps, Step{
		After:       b.after,
		AfterMillis: ms,
		Action:      action,
		Target:      target,
		Message:     message,
	})
	b.after = ""
	return b
}

// Build returns the assembled chain.
func (b *Builder) Build() (Chain, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.after != "" {
		return nil, fmt.Errorf("%w: after(%q) has no action", domain.ErrInvalidEscalation, b.after)
	}
	if len(b.steps) == 0 {
		return nil, fmt.Errorf("%w: chain is empty", domain.ErrInvalidEscalation)
	}
	return append(Chain(nil), b.steps...), nil
}
