package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/humantask/internal/domain"
)

// taskColumns is the shared list of columns for task queries.
var taskColumns = []string{
	"id", "tenant_id", "type", "title", "description", "priority", "status",
	"form_schema", "form_data",
	"assigned_user_id", "assigned_group_id", "claimed_by", "claimed_at",
	"due_at", "warn_at", "warned_at", "escalation_config", "escalation_level", "breach_action",
	"workflow_id", "workflow_run_id", "completed_by", "completed_at",
	"created_at", "updated_at", "deleted_at", "metadata",
}

// TaskRepository handles database operations for tasks and their history.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// scanTask scans a single row into a Task struct.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task                                   domain.Task
		schema, formData, escalation, metadata []byte
	)
	err := row.Scan(
		&task.ID,
		&task.TenantID,
		&task.Type,
		&task.Title,
		&task.Description,
		&task.Priority,
		&task.Status,
		&schema,
		&formData,
		&task.AssignedUserID,
		&task.AssignedGroupID,
		&task.ClaimedBy,
		&task.ClaimedAt,
		&task.DueAt,
		&task.WarnAt,
		&task.WarnedAt,
		&escalation,
		&task.EscalationLevel,
		&task.BreachAction,
		&task.WorkflowID,
		&task.WorkflowRunID,
		&task.CompletedBy,
		&task.CompletedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.DeletedAt,
		&metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if err := decodeJSON(schema, &task.FormSchema); err != nil {
		return nil, fmt.Errorf("decode form_schema of task %s: %w", task.ID, err)
	}
	if err := decodeJSON(formData, &task.FormData); err != nil {
		return nil, fmt.Errorf("decode form_data of task %s: %w", task.ID, err)
	}
	if err := decodeJSON(metadata, &task.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of task %s: %w", task.ID, err)
	}
	if len(escalation) > 0 {
		task.EscalationConfig = escalation
	}
	return &task, nil
}

// scanTasks scans multiple rows into a slice of Task structs.
func scanTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tasks, nil
}

// taskValues returns the mutable column values of a task.
func taskValues(task *domain.Task) (map[string]any, error) {
	schema, err := jsonParam(task.FormSchema)
	if err != nil {
		return nil, err
	}
	formData, err := jsonParam(task.FormData)
	if err != nil {
		return nil, err
	}
	escalation, err := jsonParam(task.EscalationConfig)
	if err != nil {
		return nil, err
	}
	metadata, err := jsonParam(task.Metadata)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"type":              task.Type,
		"title":             task.Title,
		"description":       task.Description,
		"priority":          task.Priority,
		"status":            task.Status,
		"form_schema":       schema,
		"form_data":         formData,
		"assigned_user_id":  task.AssignedUserID,
		"assigned_group_id": task.AssignedGroupID,
		"claimed_by":        task.ClaimedBy,
		"claimed_at":        task.ClaimedAt,
		"due_at":            task.DueAt,
		"warn_at":           task.WarnAt,
		"warned_at":         task.WarnedAt,
		"escalation_config": escalation,
		"escalation_level":  task.EscalationLevel,
		"breach_action":     task.BreachAction,
		"workflow_id":       task.WorkflowID,
		"workflow_run_id":   task.WorkflowRunID,
		"completed_by":      task.CompletedBy,
		"completed_at":      task.CompletedAt,
		"updated_at":        task.UpdatedAt,
		"deleted_at":        task.DeletedAt,
		"metadata":          metadata,
	}, nil
}

// GetByID retrieves a task by ID within a tenant.
func (r *TaskRepository) GetByID(ctx context.Context, tenantID, taskID string, includeDeleted bool) (*domain.Task, error) {
	qb := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"id": taskID, "tenant_id": tenantID})
	if !includeDeleted {
		qb = qb.Where(sq.Eq{"deleted_at": nil})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for task: %w", err)
	}

	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

// Create inserts a task together with its creation history entry.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task, entry *domain.TaskHistoryEntry) error {
	values, err := taskValues(task)
	if err != nil {
		return err
	}
	values["id"] = task.ID
	values["tenant_id"] = task.TenantID
	values["created_at"] = task.CreatedAt

	query, args, err := psql.
		Insert("tasks").
		SetMap(values).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Create query for task: %w", err)
	}

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return insertHistory(ctx, tx, entry)
	})
}

// Update writes the task's mutable columns and appends entry, provided the
// stored row still has expectedStatus and is not soft-deleted.
// Returns ErrConcurrentUpdate when another writer got there first.
func (r *TaskRepository) Update(
	ctx context.Context,
	task *domain.Task,
	expectedStatus domain.TaskStatus,
	entry *domain.TaskHistoryEntry,
) error {
	values, err := taskValues(task)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Update("tasks").
		SetMap(values).
		Where(sq.Eq{
			"id":         task.ID,
			"tenant_id":  task.TenantID,
			"status":     expectedStatus,
			"deleted_at": nil,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build Update query for task %s: %w", task.ID, err)
	}

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrConcurrentUpdate
		}
		return insertHistory(ctx, tx, entry)
	})
}

// Claim atomically sets the claimant, only if the task has none and is
// still claimable. Returns ErrClaimConflict when the conditional update
// matches no row.
func (r *TaskRepository) Claim(
	ctx context.Context,
	tenantID, taskID, userID string,
	at time.Time,
	entry *domain.TaskHistoryEntry,
) (*domain.Task, error) {
	query, args, err := psql.
		Update("tasks").
		Set("status", domain.TaskStatusInProgress).
		Set("claimed_by", userID).
		Set("claimed_at", at).
		Set("updated_at", at).
		Where(sq.Eq{
			"id":         taskID,
			"tenant_id":  tenantID,
			"claimed_by": nil,
			"deleted_at": nil,
			"status":     []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusAssigned},
		}).
		Suffix("RETURNING " + strings.Join(taskColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build Claim query for task %s: %w", taskID, err)
	}

	var claimed *domain.Task
	err = inTx(ctx, r.pool, func(tx pgx.Tx) error {
		task, err := scanTask(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, domain.ErrTaskNotFound) {
			return domain.ErrClaimConflict
		}
		if err != nil {
			return err
		}
		claimed = task
		return insertHistory(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// HardDelete removes a task and, through the foreign key, its history.
func (r *TaskRepository) HardDelete(ctx context.Context, tenantID, taskID string) error {
	query, args, err := psql.
		Delete("tasks").
		Where(sq.Eq{"id": taskID, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build HardDelete query for task %s: %w", taskID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// FindEscalationCandidates finds open tasks that are past due or still have
// unexecuted escalation steps.
func (r *TaskRepository) FindEscalationCandidates(ctx context.Context, tenantID string, now time.Time) ([]*domain.Task, error) {
	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{
			"tenant_id":  tenantID,
			"status":     domain.OpenStatuses,
			"deleted_at": nil,
		}).
		Where(sq.Or{
			sq.LtOrEq{"due_at": now},
			sq.Expr("CASE WHEN jsonb_typeof(escalation_config) = 'array' " +
				"THEN jsonb_array_length(escalation_config) ELSE 0 END > escalation_level"),
		}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build FindEscalationCandidates query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalation candidates: %w", err)
	}

	return scanTasks(rows)
}

// FindWarningCandidates finds open tasks whose warning time has passed but
// whose deadline has not, and which have not been warned yet.
func (r *TaskRepository) FindWarningCandidates(ctx context.Context, tenantID string, now time.Time) ([]*domain.Task, error) {
	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{
			"tenant_id":  tenantID,
			"status":     domain.OpenStatuses,
			"deleted_at": nil,
			"warned_at":  nil,
		}).
		Where(sq.LtOrEq{"warn_at": now}).
		Where(sq.Gt{"due_at": now}).
		OrderBy("warn_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build FindWarningCandidates query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query warning candidates: %w", err)
	}

	return scanTasks(rows)
}
