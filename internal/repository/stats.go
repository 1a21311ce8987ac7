package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mtlprog/humantask/internal/domain"
)

// TenantStats holds task statistics for one tenant. Soft-deleted tasks are
// not counted.
type TenantStats struct {
	Total          int
	TasksByStatus  map[domain.TaskStatus]int
	OverdueCount   int
	EscalatedCount int
}

// GetTenantStats retrieves task counts by status and the number of open
// tasks past due at now.
func (r *TaskRepository) GetTenantStats(ctx context.Context, tenantID string, now time.Time) (*TenantStats, error) {
	stats := &TenantStats{TasksByStatus: make(map[domain.TaskStatus]int)}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM tasks
		WHERE tenant_id = $1 AND deleted_at IS NULL
		GROUP BY status
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.TasksByStatus[status] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}

	query, args, err := psql.
		Select("COUNT(*)").
		From("tasks").
		Where(sq.Eq{
			"tenant_id":  tenantID,
			"status":     domain.OpenStatuses,
			"deleted_at": nil,
		}).
		Where(sq.LtOrEq{"due_at": now}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&stats.OverdueCount); err != nil {
		return nil, fmt.Errorf("count overdue tasks: %w", err)
	}

	stats.EscalatedCount = stats.TasksByStatus[domain.TaskStatusEscalated]

	return stats, nil
}
