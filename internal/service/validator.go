package service

import (
	"fmt"

	"github.com/mtlprog/humantask/internal/domain"
)

// Operation names used in state errors and logs.
const (
	opClaim     = "claim"
	opUnclaim   = "unclaim"
	opComplete  = "complete"
	opReassign  = "reassign"
	opCancel    = "cancel"
	opExpire    = "expire"
	opEscalate  = "escalate"
	opSLAWarn   = "warn"
	opEscNotify = "notify"
)

// legalSources lists the statuses each operation may start from.
var legalSources = map[string][]domain.TaskStatus{
	opClaim:    {domain.TaskStatusPending, domain.TaskStatusAssigned},
	opComplete: {domain.TaskStatusPending, domain.TaskStatusAssigned, domain.TaskStatusInProgress},
	opReassign: {
		domain.TaskStatusPending, domain.TaskStatusAssigned,
		domain.TaskStatusInProgress, domain.TaskStatusEscalated,
	},
	opCancel: {
		domain.TaskStatusPending, domain.TaskStatusAssigned,
		domain.TaskStatusInProgress, domain.TaskStatusEscalated,
	},
	opExpire:    domain.OpenStatuses,
	opEscalate:  domain.OpenStatuses,
	opSLAWarn:   domain.OpenStatuses,
	opEscNotify: domain.OpenStatuses,
}

// Validator handles permission and state validation for task operations.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// CanTransition checks the state machine table for op.
func (v *Validator) CanTransition(task *domain.Task, op string) error {
	if !task.Status.In(legalSources[op]...) {
		return fmt.Errorf("%w: cannot %s task %s in %s status", domain.ErrInvalidState, op, task.ID, task.Status)
	}
	return nil
}

// CanClaim validates if a user can claim a task.
func (v *Validator) CanClaim(task *domain.Task, userID string) error {
	if err := v.CanTransition(task, opClaim); err != nil {
		return err
	}

	// Must have no current claimant
	if task.IsClaimed() {
		return fmt.Errorf("%w: task %s is claimed by %s", domain.ErrClaimConflict, task.ID, *task.ClaimedBy)
	}

	// Must be the direct assignee, or the task must be a group task
	if !task.IsAssignedTo(userID) && !task.HasGroupAssignment() {
		return fmt.Errorf("%w: user %s cannot claim task %s", domain.ErrNotAssignee, userID, task.ID)
	}

	return nil
}

// CanUnclaim validates if a user can release the claim on a task.
func (v *Validator) CanUnclaim(task *domain.Task, userID string) error {
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot %s task %s in %s status", domain.ErrInvalidState, opUnclaim, task.ID, task.Status)
	}

	if !task.IsClaimedBy(userID) {
		return fmt.Errorf("%w: user %s does not hold task %s", domain.ErrNotClaimant, userID, task.ID)
	}

	return nil
}

// CanComplete validates if a user can complete a task. A claimed task can
// only be completed by its claimant.
func (v *Validator) CanComplete(task *domain.Task, userID string) error {
	if err := v.CanTransition(task, opComplete); err != nil {
		return err
	}

	if task.IsClaimed() && !task.IsClaimedBy(userID) {
		return fmt.Errorf("%w: task %s is claimed by %s", domain.ErrNotClaimant, task.ID, *task.ClaimedBy)
	}

	return nil
}
