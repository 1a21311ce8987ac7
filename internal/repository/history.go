package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/mtlprog/humantask/internal/domain"
)

// insertHistory appends a history entry within the caller's transaction.
func insertHistory(ctx context.Context, tx pgx.Tx, entry *domain.TaskHistoryEntry) error {
	data, err := jsonParam(entry.Data)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("task_history").
		Columns("id", "task_id", "tenant_id", "action", "user_id", "data", "created_at").
		Values(entry.ID, entry.TaskID, entry.TenantID, entry.Action, entry.UserID, data, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("create history entry: %w", err)
	}
	return nil
}

// ListHistory retrieves the history of a task in insertion order or in
// reverse.
func (r *TaskRepository) ListHistory(
	ctx context.Context,
	tenantID, taskID string,
	order domain.HistoryOrder,
) ([]*domain.TaskHistoryEntry, error) {
	direction := "ASC"
	if order == domain.HistoryOrderDesc {
		direction = "DESC"
	}

	query, args, err := psql.
		Select("id", "task_id", "tenant_id", "action", "user_id", "data", "created_at").
		From("task_history").
		Where(sq.Eq{"task_id": taskID, "tenant_id": tenantID}).
		OrderBy("seq " + direction).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.TaskHistoryEntry
	for rows.Next() {
		var (
			entry domain.TaskHistoryEntry
			data  []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.TaskID,
			&entry.TenantID,
			&entry.Action,
			&entry.UserID,
			&data,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if err := decodeJSON(data, &entry.Data); err != nil {
			return nil, fmt.Errorf("decode history data: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}
