package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/escalation"
	"github.com/mtlprog/humantask/internal/form"
	"github.com/mtlprog/humantask/internal/repository"
	"github.com/mtlprog/humantask/internal/sla"
	"github.com/mtlprog/humantask/internal/workflow"
)

// TaskStore persists tasks and their history. Every mutating method writes
// the task and its history entry atomically.
type TaskStore interface {
	GetByID(ctx context.Context, tenantID, taskID string, includeDeleted bool) (*domain.Task, error)
	Create(ctx context.Context, task *domain.Task, entry *domain.TaskHistoryEntry) error
	Update(ctx context.Context, task *domain.Task, expectedStatus domain.TaskStatus, entry *domain.TaskHistoryEntry) error
	Claim(ctx context.Context, tenantID, taskID, userID string, at time.Time, entry *domain.TaskHistoryEntry) (*domain.Task, error)
	HardDelete(ctx context.Context, tenantID, taskID string) error
	List(ctx context.Context, filters repository.TaskListFilters) ([]*domain.Task, int, error)
	ListHistory(ctx context.Context, tenantID, taskID string, order domain.HistoryOrder) ([]*domain.TaskHistoryEntry, error)
	FindEscalationCandidates(ctx context.Context, tenantID string, now time.Time) ([]*domain.Task, error)
	FindWarningCandidates(ctx context.Context, tenantID string, now time.Time) ([]*domain.Task, error)
	GetTenantStats(ctx context.Context, tenantID string, now time.Time) (*repository.TenantStats, error)
}

// AssignmentResolver turns a target into a concrete assignment.
type AssignmentResolver interface {
	Resolve(ctx context.Context, tenantID string, target domain.Target) (domain.Assignment, error)
}

// Notifier delivers lifecycle notifications. Failures are logged, never
// surfaced to the caller.
type Notifier interface {
	TaskCreated(ctx context.Context, task *domain.Task) error
	TaskAssigned(ctx context.Context, task *domain.Task, userID string) error
	TaskEscalated(ctx context.Context, task *domain.Task, reason string) error
	EscalationNotice(ctx context.Context, task *domain.Task, to domain.Target, reason string) error
	TaskCompleted(ctx context.Context, task *domain.Task) error
	SLAWarning(ctx context.Context, task *domain.Task, minutesRemaining int) error
	SLABreach(ctx context.Context, task *domain.Task) error
}

// Signaler delivers a named signal to a linked workflow run.
type Signaler interface {
	Signal(ctx context.Context, workflowID, runID, name string, payload any) error
}

// TaskService coordinates task operations and state transitions.
type TaskService struct {
	store     TaskStore
	resolver  AssignmentResolver
	notifier  Notifier
	signaler  Signaler
	validator *Validator
	now       func() time.Time
}

// Option configures a TaskService.
type Option func(*TaskService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) {
		s.now = now
	}
}

// NewTaskService creates a new TaskService. A nil notifier or signaler
// disables that side effect.
func NewTaskService(
	store TaskStore,
	resolver AssignmentResolver,
	notifier Notifier,
	signaler Signaler,
	opts ...Option,
) *TaskService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if signaler == nil {
		signaler = workflow.NoopSignaler{}
	}
	s := &TaskService{
		store:     store,
		resolver:  resolver,
		notifier:  notifier,
		signaler:  signaler,
		validator: NewValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTaskParams describes a new task.
type CreateTaskParams struct {
	Type             string
	Title            string
	Description      string
	Priority         domain.TaskPriority
	FormSchema       form.Schema
	Target           domain.Target
	SLA              sla.Config
	EscalationConfig json.RawMessage
	BreachAction     domain.BreachAction
	WorkflowID       string
	WorkflowRunID    string
	Metadata         map[string]any
}

func (p *CreateTaskParams) normalize() error {
	p.Type = strings.TrimSpace(p.Type)
	p.Title = strings.TrimSpace(p.Title)
	if p.Type == "" {
		return fmt.Errorf("%w: type is required", domain.ErrValidation)
	}
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if p.Priority == "" {
		p.Priority = domain.TaskPriorityMedium
	}
	if !p.Priority.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPriority, p.Priority)
	}
	if p.BreachAction == "" {
		p.BreachAction = domain.BreachActionEscalate
	}
	if !p.BreachAction.IsValid() {
		return fmt.Errorf("%w: unknown breach action %q", domain.ErrValidation, p.BreachAction)
	}
	if p.WorkflowRunID != "" && p.WorkflowID == "" {
		return fmt.Errorf("%w: workflowRunId requires workflowId", domain.ErrValidation)
	}
	if err := p.FormSchema.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSchema, err)
	}
	if _, err := escalation.Validate(p.EscalationConfig); err != nil {
		return err
	}
	return nil
}

// CreateTask creates a task, pending or assigned depending on the target.
func (s *TaskService) CreateTask(ctx context.Context, rc domain.RequestContext, params CreateTaskParams) (*domain.Task, error) {
	if err := rc.RequireTenant(); err != nil {
		return nil, err
	}
	if err := params.normalize(); err != nil {
		return nil, err
	}

	now := s.now()
	task := &domain.Task{
		ID:               uuid.NewString(),
		TenantID:         rc.TenantID,
		Type:             params.Type,
		Title:            params.Title,
		Description:      params.Description,
		Priority:         params.Priority,
		Status:           domain.TaskStatusPending,
		FormSchema:       params.FormSchema,
		EscalationConfig: params.EscalationConfig,
		BreachAction:     params.BreachAction,
		WorkflowID:       optional(params.WorkflowID),
		WorkflowRunID:    optional(params.WorkflowRunID),
		CreatedAt:        now,
		UpdatedAt:        now,
		Metadata:         params.Metadata,
	}
	if err := applySLA(task, params.SLA); err != nil {
		return nil, err
	}

	assignment, err := s.resolver.Resolve(ctx, rc.TenantID, params.Target)
	if err != nil {
		return nil, err
	}
	task.ApplyAssignment(assignment)
	if !assignment.IsEmpty() {
		task.Status = domain.TaskStatusAssigned
	}

	entry := s.newEntry(rc, task, domain.HistoryActionCreated, map[string]any{
		"status":     task.Status,
		"priority":   task.Priority,
		"assignment": assignmentData(task.Assignment()),
	})
	if err := s.store.Create(ctx, task, entry); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	slog.Info("task created",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"status", task.Status,
		"type", task.Type,
	)

	s.notify(task, "taskCreated", func() error { return s.notifier.TaskCreated(ctx, task) })
	s.notifyAssigned(ctx, task)

	return task, nil
}

// Claim gives the caller exclusive ownership of a task.
func (s *TaskService) Claim(ctx context.Context, rc domain.RequestContext, taskID string) (*domain.Task, error) {
	userID, err := rc.RequireUser()
	if err != nil {
		return nil, err
	}
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}

	if err := s.validator.CanClaim(task, userID); err != nil {
		return nil, err
	}

	now := s.now()
	entry := s.newEntry(rc, task, domain.HistoryActionClaimed, map[string]any{"previous_status": task.Status})
	claimed, err := s.store.Claim(ctx, rc.TenantID, task.ID, userID, now, entry)
	if err != nil {
		return nil, err
	}

	slog.Info("task claimed",
		"task_id", task.ID,
		"tenant_id", rc.TenantID,
		"user_id", userID,
	)

	return claimed, nil
}

// Unclaim releases the caller's claim and returns the task to assigned.
func (s *TaskService) Unclaim(ctx context.Context, rc domain.RequestContext, taskID string) (*domain.Task, error) {
	userID, err := rc.RequireUser()
	if err != nil {
		return nil, err
	}
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}

	if err := s.validator.CanUnclaim(task, userID); err != nil {
		return nil, err
	}

	oldStatus := task.Status
	task.ClearClaim()
	task.Status = domain.TaskStatusAssigned

	if err := s.save(ctx, rc, task, oldStatus, domain.HistoryActionUnclaimed, map[string]any{
		"previous_status": oldStatus,
	}); err != nil {
		return nil, err
	}

	slog.Info("task unclaimed",
		"task_id", task.ID,
		"tenant_id", rc.TenantID,
		"user_id", userID,
	)

	return task, nil
}

// Complete validates formData against the task's schema and completes it.
func (s *TaskService) Complete(
	ctx context.Context,
	rc domain.RequestContext,
	taskID string,
	formData map[string]any,
) (*domain.Task, error) {
	userID, err := rc.RequireUser()
	if err != nil {
		return nil, err
	}
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}

	if err := s.validator.CanComplete(task, userID); err != nil {
		return nil, err
	}

	result := formData
	if task.FormSchema != nil {
		coerced, fieldErrs := form.Validate(task.FormSchema, formData)
		if fieldErrs != nil {
			return nil, domain.NewValidationError(fieldErrs)
		}
		result = coerced
	}

	now := s.now()
	oldStatus := task.Status
	task.Status = domain.TaskStatusCompleted
	task.FormData = result
	task.CompletedBy = &userID
	task.CompletedAt = &now

	if err := s.save(ctx, rc, task, oldStatus, domain.HistoryActionCompleted, map[string]any{
		"previous_status": oldStatus,
		"form_data":       result,
	}); err != nil {
		return nil, err
	}

	slog.Info("task completed",
		"task_id", task.ID,
		"tenant_id", rc.TenantID,
		"user_id", userID,
		"old_status", oldStatus,
	)

	s.notify(task, "taskCompleted", func() error { return s.notifier.TaskCompleted(ctx, task) })
	s.signal(ctx, task, workflow.SignalTaskCompleted, workflow.TaskCompleted{
		TaskID:      task.ID,
		FormData:    result,
		CompletedBy: userID,
		CompletedAt: now,
	})

	return task, nil
}

// Reassign moves a task to target, or back to pending for an empty target.
func (s *TaskService) Reassign(
	ctx context.Context,
	rc domain.RequestContext,
	taskID string,
	target domain.Target,
	reason string,
) (*domain.Task, error) {
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}

	if err := s.validator.CanTransition(task, opReassign); err != nil {
		return nil, err
	}

	if err := s.reassign(ctx, rc, task, target, map[string]any{"reason": reason}); err != nil {
		return nil, err
	}

	return task, nil
}

func (s *TaskService) reassign(
	ctx context.Context,
	rc domain.RequestContext,
	task *domain.Task,
	target domain.Target,
	data map[string]any,
) error {
	assignment, err := s.resolver.Resolve(ctx, task.TenantID, target)
	if err != nil {
		return err
	}

	oldStatus := task.Status
	previous := task.Assignment()
	task.ApplyAssignment(assignment)
	task.Status = domain.TaskStatusPending
	if !assignment.IsEmpty() {
		task.Status = domain.TaskStatusAssigned
	}

	data["previous_status"] = oldStatus
	data["from"] = assignmentData(previous)
	data["to"] = assignmentData(assignment)
	if err := s.save(ctx, rc, task, oldStatus, domain.HistoryActionReassigned, data); err != nil {
		return err
	}

	slog.Info("task reassigned",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"old_status", oldStatus,
		"new_status", task.Status,
	)

	s.notifyAssigned(ctx, task)
	return nil
}

// Cancel cancels a task that has not reached a terminal status.
func (s *TaskService) Cancel(ctx context.Context, rc domain.RequestContext, taskID, reason string) (*domain.Task, error) {
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}

	if err := s.validator.CanTransition(task, opCancel); err != nil {
		return nil, err
	}

	now := s.now()
	oldStatus := task.Status
	task.Status = domain.TaskStatusCancelled

	if err := s.save(ctx, rc, task, oldStatus, domain.HistoryActionCancelled, map[string]any{
		"previous_status": oldStatus,
		"reason":          reason,
	}); err != nil {
		return nil, err
	}

	slog.Info("task cancelled",
		"task_id", task.ID,
		"tenant_id", rc.TenantID,
		"old_status", oldStatus,
	)

	s.signal(ctx, task, workflow.SignalTaskCancelled, workflow.TaskCancelled{
		TaskID:      task.ID,
		Reason:      reason,
		CancelledBy: deref(rc.UserID),
		CancelledAt: now,
	})

	return task, nil
}

// Expire marks an open task as expired. The history entry is recorded as a
// system action.
func (s *TaskService) Expire(ctx context.Context, rc domain.RequestContext, taskID string) (*domain.Task, error) {
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}
	if err := s.expire(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) expire(ctx context.Context, task *domain.Task) error {
	if err := s.validator.CanTransition(task, opExpire); err != nil {
		return err
	}

	oldStatus := task.Status
	task.Status = domain.TaskStatusExpired

	rc := domain.SystemContext(task.TenantID)
	if err := s.save(ctx, rc, task, oldStatus, domain.HistoryActionExpired, map[string]any{
		"previous_status": oldStatus,
	}); err != nil {
		return err
	}

	slog.Info("task expired",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"old_status", oldStatus,
	)

	return nil
}

// Escalate escalates an open task. The target is the explicit one when
// given, else the first step of the escalation chain, else the current
// assignment.
func (s *TaskService) Escalate(
	ctx context.Context,
	rc domain.RequestContext,
	taskID string,
	reason string,
	explicit *domain.Target,
) (*domain.Task, error) {
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return nil, err
	}

	if err := s.validator.CanTransition(task, opEscalate); err != nil {
		return nil, err
	}

	chain := escalation.ParseConfig(task.EscalationConfig)
	target, source := escalation.ResolveManualTarget(explicit, chain, task.Assignment())

	if err := s.escalate(ctx, rc, task, target, source == escalation.SourceCurrent, reason, map[string]any{
		"source": source,
	}); err != nil {
		return nil, err
	}

	return task, nil
}

// escalate moves the task to escalated. With keepAssignment the existing
// assignment is re-applied as is; otherwise target is resolved.
func (s *TaskService) escalate(
	ctx context.Context,
	rc domain.RequestContext,
	task *domain.Task,
	target domain.Target,
	keepAssignment bool,
	reason string,
	data map[string]any,
) error {
	assignment := task.Assignment()
	if !keepAssignment {
		resolved, err := s.resolver.Resolve(ctx, task.TenantID, target)
		if err != nil {
			return err
		}
		assignment = resolved
	}

	now := s.now()
	oldStatus := task.Status
	task.ApplyAssignment(assignment)
	task.Status = domain.TaskStatusEscalated

	data["previous_status"] = oldStatus
	data["reason"] = reason
	data["to"] = assignmentData(assignment)
	if err := s.save(ctx, rc, task, oldStatus, domain.HistoryActionEscalated, data); err != nil {
		return err
	}

	slog.Info("task escalated",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"old_status", oldStatus,
		"reason", reason,
	)

	s.notify(task, "taskEscalated", func() error { return s.notifier.TaskEscalated(ctx, task, reason) })
	s.signal(ctx, task, workflow.SignalTaskEscalated, workflow.TaskEscalated{
		TaskID:      task.ID,
		Reason:      reason,
		EscalatedTo: assignment.Target(),
		EscalatedAt: now,
	})

	return nil
}

// SoftDelete hides a task from reads without changing its status.
func (s *TaskService) SoftDelete(ctx context.Context, rc domain.RequestContext, taskID string) error {
	task, err := s.FindByID(ctx, rc, taskID, false)
	if err != nil {
		return err
	}

	now := s.now()
	task.DeletedAt = &now

	if err := s.save(ctx, rc, task, task.Status, domain.HistoryActionDeleted, map[string]any{
		"status": task.Status,
	}); err != nil {
		return err
	}

	slog.Info("task deleted",
		"task_id", task.ID,
		"tenant_id", rc.TenantID,
	)

	return nil
}

// HardDelete removes a task and its history. Reserved for administrative
// cleanup; anonymous callers get ErrUnauthenticated.
func (s *TaskService) HardDelete(ctx context.Context, rc domain.RequestContext, taskID string) error {
	if err := rc.RequireTenant(); err != nil {
		return err
	}
	actor, err := rc.RequireUser()
	if err != nil {
		return err
	}
	if err := s.store.HardDelete(ctx, rc.TenantID, taskID); err != nil {
		return err
	}

	slog.Warn("task purged",
		"task_id", taskID,
		"tenant_id", rc.TenantID,
		"purged_by", actor,
	)

	return nil
}

// save stamps the task, appends one history entry and persists both,
// provided the stored status is still expected.
func (s *TaskService) save(
	ctx context.Context,
	rc domain.RequestContext,
	task *domain.Task,
	expected domain.TaskStatus,
	action domain.HistoryAction,
	data map[string]any,
) error {
	task.UpdatedAt = s.now()
	entry := s.newEntry(rc, task, action, data)
	if err := s.store.Update(ctx, task, expected, entry); err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return fmt.Errorf("%w: task %s", err, task.ID)
		}
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *TaskService) newEntry(
	rc domain.RequestContext,
	task *domain.Task,
	action domain.HistoryAction,
	data map[string]any,
) *domain.TaskHistoryEntry {
	merged := rc.AuditData()
	for k, v := range data {
		merged[k] = v
	}
	var userID *string
	if rc.UserID != nil {
		id := *rc.UserID
		userID = &id
	}
	return &domain.TaskHistoryEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		TenantID:  task.TenantID,
		Action:    action,
		UserID:    userID,
		Data:      merged,
		CreatedAt: s.now(),
	}
}

// notify runs a notification and logs its failure.
func (s *TaskService) notify(task *domain.Task, kind string, send func() error) {
	if err := send(); err != nil {
		slog.Warn("notification failed",
			"task_id", task.ID,
			"notification", kind,
			"error", err,
		)
	}
}

func (s *TaskService) notifyAssigned(ctx context.Context, task *domain.Task) {
	if task.AssignedUserID == nil {
		return
	}
	userID := *task.AssignedUserID
	s.notify(task, "taskAssigned", func() error { return s.notifier.TaskAssigned(ctx, task, userID) })
}

// signal delivers a workflow signal if the task is linked and logs failures.
func (s *TaskService) signal(ctx context.Context, task *domain.Task, name string, payload any) {
	if !task.HasWorkflowLink() {
		return
	}
	if err := s.signaler.Signal(ctx, *task.WorkflowID, deref(task.WorkflowRunID), name, payload); err != nil {
		slog.Error("workflow signal failed",
			"task_id", task.ID,
			"workflow_id", *task.WorkflowID,
			"signal", name,
			"error", err,
		)
	}
}

func assignmentData(a domain.Assignment) map[string]any {
	return map[string]any{
		"user_id":  deref(a.UserID),
		"group_id": deref(a.GroupID),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

type noopNotifier struct{}

func (noopNotifier) TaskCreated(context.Context, *domain.Task) error           { return nil }
func (noopNotifier) TaskAssigned(context.Context, *domain.Task, string) error  { return nil }
func (noopNotifier) TaskEscalated(context.Context, *domain.Task, string) error { return nil }
func (noopNotifier) TaskCompleted(context.Context, *domain.Task) error         { return nil }
func (noopNotifier) SLAWarning(context.Context, *domain.Task, int) error       { return nil }
func (noopNotifier) SLABreach(context.Context, *domain.Task) error             { return nil }
func (noopNotifier) EscalationNotice(context.Context, *domain.Task, domain.Target, string) error {
	return nil
}
