package service

import (
	"context"
	"fmt"

	"github.com/mtlprog/humantask/internal/domain"
	"github.com/mtlprog/humantask/internal/repository"
)

const (
	// DefaultListLimit is the page size used when none is given.
	DefaultListLimit = 50
	// MaxListLimit caps the page size.
	MaxListLimit = 200
)

// FindByID returns a task of the caller's tenant. Tasks of other tenants
// are reported as not found.
func (s *TaskService) FindByID(
	ctx context.Context,
	rc domain.RequestContext,
	taskID string,
	includeDeleted bool,
) (*domain.Task, error) {
	if err := rc.RequireTenant(); err != nil {
		return nil, err
	}
	task, err := s.store.GetByID(ctx, rc.TenantID, taskID, includeDeleted)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// List returns a page of the caller's tenant tasks and the total count.
func (s *TaskService) List(
	ctx context.Context,
	rc domain.RequestContext,
	filters repository.TaskListFilters,
) ([]*domain.Task, int, error) {
	if err := rc.RequireTenant(); err != nil {
		return nil, 0, err
	}

	filters.TenantID = rc.TenantID
	filters.Now = s.now()
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}
	if filters.Limit > MaxListLimit {
		filters.Limit = MaxListLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	for _, status := range filters.Statuses {
		if !status.IsValid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
		}
	}
	for _, priority := range filters.Priorities {
		if !priority.IsValid() {
			return nil, 0, fmt.Errorf("%w: %q", domain.ErrInvalidPriority, priority)
		}
	}
	for _, token := range filters.Sort {
		if !repository.IsValidSort(token) {
			return nil, 0, fmt.Errorf("%w: unsupported sort field %q", domain.ErrValidation, token)
		}
	}

	return s.store.List(ctx, filters)
}

// History returns the history of a task in creation order or reversed.
// Soft-deleted tasks keep their history readable.
func (s *TaskService) History(
	ctx context.Context,
	rc domain.RequestContext,
	taskID string,
	order domain.HistoryOrder,
) ([]*domain.TaskHistoryEntry, error) {
	if _, err := s.FindByID(ctx, rc, taskID, true); err != nil {
		return nil, err
	}
	if order == "" {
		order = domain.HistoryOrderAsc
	}
	if order != domain.HistoryOrderAsc && order != domain.HistoryOrderDesc {
		return nil, fmt.Errorf("%w: unknown order %q", domain.ErrValidation, order)
	}
	return s.store.ListHistory(ctx, rc.TenantID, taskID, order)
}

// Stats returns task statistics of the caller's tenant.
func (s *TaskService) Stats(ctx context.Context, rc domain.RequestContext) (*repository.TenantStats, error) {
	if err := rc.RequireTenant(); err != nil {
		return nil, err
	}
	return s.store.GetTenantStats(ctx, rc.TenantID, s.now())
}

// FindDueForEscalation returns the tenant's open tasks that are past due or
// still have escalation steps to run. An external poller drives the sweep
// from this.
func (s *TaskService) FindDueForEscalation(ctx context.Context, tenantID string) ([]*domain.Task, error) {
	if err := domain.SystemContext(tenantID).RequireTenant(); err != nil {
		return nil, err
	}
	tasks, err := s.store.FindEscalationCandidates(ctx, tenantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("find escalation candidates: %w", err)
	}
	return tasks, nil
}
