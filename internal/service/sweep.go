package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/escalation"
)

// defaultBreachReason is recorded when a deadline passes with no step to apply.
const defaultBreachReason = "SLA deadline breached"

// ProcessEscalations runs one escalation pass over the tenant's candidates.
// Returns the number of tasks changed, and an error if any tasks failed.
func (s *TaskService) ProcessEscalations(ctx context.Context, tenantID string) (int, error) {
	tasks, err := s.FindDueForEscalation(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	if len(tasks) == 0 {
		slog.Info("no tasks due for escalation", "tenant_id", tenantID)
		return 0, nil
	}

	now := s.now()
	count := 0
	var errs []error
	for _, task := range tasks {
		changed, err := s.processEscalation(ctx, task, now)
		if err != nil {
			slog.Error("failed to process escalation",
				"task_id", task.ID,
				"tenant_id", tenantID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		if changed {
			count++
		}
	}

	slog.Info("processed escalations",
		"tenant_id", tenantID,
		"candidates", len(tasks),
		"changed", count,
		"failed", len(errs),
	)

	if len(errs) > 0 {
		return count, fmt.Errorf("processed %d tasks, %d failures: %w", len(tasks), len(errs), errors.Join(errs...))
	}

	return count, nil
}

// processEscalation applies the sweep decision for a single task.
func (s *TaskService) processEscalation(ctx context.Context, task *domain.Task, now time.Time) (bool, error) {
	decision := escalation.Decide(task, now)
	rc := domain.SystemContext(task.TenantID)

	switch decision.Kind {
	case escalation.DecisionStep:
		return true, s.applyStep(ctx, rc, task, decision.Selection)

	case escalation.DecisionExpire:
		if err := s.expire(ctx, task); err != nil {
			return false, err
		}
		s.notify(task, "slaBreach", func() error { return s.notifier.SLABreach(ctx, task) })
		return true, nil

	case escalation.DecisionDefault:
		err := s.escalate(ctx, rc, task, domain.Target{}, true, defaultBreachReason, map[string]any{
			"source": "sla_breach",
		})
		if err != nil {
			return false, err
		}
		s.notify(task, "slaBreach", func() error { return s.notifier.SLABreach(ctx, task) })
		return true, nil

	default:
		return false, nil
	}
}

// applyStep executes one escalation step. Steps whose thresholds also passed
// but which were overtaken by a later one are recorded, not executed.
func (s *TaskService) applyStep(
	ctx context.Context,
	rc domain.RequestContext,
	task *domain.Task,
	sel escalation.Selection,
) error {
	step := sel.Step
	data := map[string]any{
		"step":       sel.Index,
		"step_after": step.After,
		"action":     step.Action,
		"final_step": sel.IsFinal,
	}
	if step.Message != "" {
		data["message"] = step.Message
	}
	if len(sel.Skipped) > 0 {
		chain := escalation.ParseConfig(task.EscalationConfig)
		skipped := make([]map[string]any, 0, len(sel.Skipped))
		for _, i := range sel.Skipped {
			skipped = append(skipped, map[string]any{"step": i, "action": chain[i].Action})
		}
		data["skipped_steps"] = skipped
		slog.Warn("escalation steps skipped",
			"task_id", task.ID,
			"tenant_id", task.TenantID,
			"applied_step", sel.Index,
			"skipped", sel.Skipped,
		)
	}

	task.EscalationLevel = sel.Index + 1
	reason := step.Message
	if reason == "" {
		reason = fmt.Sprintf("escalation step %d (%s after %s)", sel.Index+1, step.Action, step.After)
	}

	switch step.Action {
	case escalation.ActionNotify:
		return s.escalationNotice(ctx, rc, task, step, reason, data)
	case escalation.ActionReassign:
		if err := s.validator.CanTransition(task, opReassign); err != nil {
			return err
		}
		data["reason"] = reason
		return s.reassign(ctx, rc, task, step.Target, data)
	default:
		if err := s.validator.CanTransition(task, opEscalate); err != nil {
			return err
		}
		return s.escalate(ctx, rc, task, step.Target, false, reason, data)
	}
}

// escalationNotice records a notify step without changing status. A step
// with a target notifies that target, otherwise the current assignee.
func (s *TaskService) escalationNotice(
	ctx context.Context,
	rc domain.RequestContext,
	task *domain.Task,
	step escalation.Step,
	reason string,
	data map[string]any,
) error {
	if err := s.validator.CanTransition(task, opEscNotify); err != nil {
		return err
	}
	if !step.Target.IsEmpty() {
		data["notify"] = map[string]any{"user_id": step.Target.UserID, "group_id": step.Target.GroupID}
	}

	if err := s.save(ctx, rc, task, task.Status, domain.HistoryActionEscalationNotified, data); err != nil {
		return err
	}

	slog.Info("escalation notice sent",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"level", task.EscalationLevel,
	)

	if step.Target.IsEmpty() {
		s.notify(task, "taskEscalated", func() error { return s.notifier.TaskEscalated(ctx, task, reason) })
		return nil
	}
	s.notify(task, "escalationNotice", func() error {
		return s.notifier.EscalationNotice(ctx, task, step.Target, reason)
	})
	return nil
}

// ProcessWarnings emits one SLA warning per task whose warning time has
// passed. Returns the number of tasks warned, and an error if any failed.
func (s *TaskService) ProcessWarnings(ctx context.Context, tenantID string) (int, error) {
	if err := domain.SystemContext(tenantID).RequireTenant(); err != nil {
		return 0, err
	}

	now := s.now()
	tasks, err := s.store.FindWarningCandidates(ctx, tenantID, now)
	if err != nil {
		return 0, fmt.Errorf("find warning candidates: %w", err)
	}

	count := 0
	var errs []error
	for _, task := range tasks {
		if err := s.warn(ctx, task, now); err != nil {
			slog.Error("failed to process SLA warning",
				"task_id", task.ID,
				"tenant_id", tenantID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		count++
	}

	slog.Info("processed SLA warnings",
		"tenant_id", tenantID,
		"candidates", len(tasks),
		"warned", count,
		"failed", len(errs),
	)

	if len(errs) > 0 {
		return count, fmt.Errorf("processed %d tasks, %d failures: %w", len(tasks), len(errs), errors.Join(errs...))
	}

	return count, nil
}

func (s *TaskService) warn(ctx context.Context, task *domain.Task, now time.Time) error {
	if err := s.validator.CanTransition(task, opSLAWarn); err != nil {
		return err
	}

	minutes := minutesUntilDue(task, now)
	task.WarnedAt = &now

	rc := domain.SystemContext(task.TenantID)
	if err := s.save(ctx, rc, task, task.Status, domain.HistoryActionSLAWarning, map[string]any{
		"minutes_remaining": minutes,
	}); err != nil {
		return err
	}

	s.notify(task, "slaWarning", func() error { return s.notifier.SLAWarning(ctx, task, minutes) })
	return nil
}
