package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mtlprog/humantask/internal/domain"
)

// TaskListFilters holds all supported filters for task listing.
type TaskListFilters struct {
	TenantID        string                // Required: filter by tenant
	Statuses        []domain.TaskStatus   // Optional: filter by status
	AssignedUserID  *string               // Optional: filter by assigned user
	AssignedGroupID *string               // Optional: filter by assigned group
	ClaimedBy       *string               // Optional: filter by claimant
	Priorities      []domain.TaskPriority // Optional: filter by priority
	Overdue         bool                  // Optional: show only open tasks past due
	IncludeDeleted  bool                  // Optional: include soft-deleted tasks
	Now             time.Time             // Reference time for Overdue
	Sort            []string              // Optional: sort fields (with - prefix for DESC)
	Limit           int                   // Required: page size
	Offset          int                   // Required: page offset
}

// SortFields are the fields a listing can be sorted by.
var SortFields = map[string]string{
	"priority":   priorityRank,
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_at":     "due_at",
}

const priorityRank = "CASE priority WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 WHEN 'low' THEN 4 END"

// IsValidSort reports whether a sort token (optionally prefixed with -) is supported.
func IsValidSort(token string) bool {
	_, ok := SortFields[strings.TrimPrefix(token, "-")]
	return ok
}

func applyListFilters(qb sq.SelectBuilder, filters TaskListFilters) sq.SelectBuilder {
	qb = qb.Where(sq.Eq{"tenant_id": filters.TenantID})

	if !filters.IncludeDeleted {
		qb = qb.Where(sq.Eq{"deleted_at": nil})
	}
	if len(filters.Statuses) > 0 {
		qb = qb.Where(sq.Eq{"status": filters.Statuses})
	}
	if filters.AssignedUserID != nil {
		qb = qb.Where(sq.Eq{"assigned_user_id": *filters.AssignedUserID})
	}
	if filters.AssignedGroupID != nil {
		qb = qb.Where(sq.Eq{"assigned_group_id": *filters.AssignedGroupID})
	}
	if filters.ClaimedBy != nil {
		qb = qb.Where(sq.Eq{"claimed_by": *filters.ClaimedBy})
	}
	if len(filters.Priorities) > 0 {
		qb = qb.Where(sq.Eq{"priority": filters.Priorities})
	}
	if filters.Overdue {
		qb = qb.
			Where(sq.LtOrEq{"due_at": filters.Now}).
			Where(sq.Eq{"status": domain.OpenStatuses})
	}
	return qb
}

// List retrieves tasks with filters and pagination, plus the unpaginated total.
func (r *TaskRepository) List(ctx context.Context, filters TaskListFilters) ([]*domain.Task, int, error) {
	qb := applyListFilters(psql.Select(taskColumns...).From("tasks"), filters)

	// Default: most urgent first, oldest first
	if len(filters.Sort) == 0 {
		qb = qb.OrderBy(priorityRank+" ASC", "created_at ASC")
	}
	for _, token := range filters.Sort {
		direction := "ASC"
		if strings.HasPrefix(token, "-") {
			direction = "DESC"
		}
		column, ok := SortFields[strings.TrimPrefix(token, "-")]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unsupported sort field %q", domain.ErrValidation, token)
		}
		qb = qb.OrderBy(column + " " + direction)
	}
	qb = qb.OrderBy("id ASC")

	qb = qb.Limit(uint64(filters.Limit)).Offset(uint64(filters.Offset))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build List query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyListFilters(psql.Select("COUNT(*)").From("tasks"), filters).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	return tasks, total, nil
}
