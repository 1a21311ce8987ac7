package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/humantask/internal/domain"
)

// DirectoryRepository reads tenant users and group membership.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// ActiveMembers lists the members of a group, excluding users marked
// inactive in the directory, ordered by user id.
func (r *DirectoryRepository) ActiveMembers(ctx context.Context, tenantID, groupID string) ([]string, error) {
	query, args, err := psql.
		Select("m.user_id").
		From("group_members m").
		LeftJoin("directory_users u ON u.tenant_id = m.tenant_id AND u.user_id = m.user_id").
		Where(sq.Eq{"m.tenant_id": tenantID, "m.group_id": groupID}).
		Where("COALESCE(u.is_active, TRUE)").
		OrderBy("m.user_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members = append(members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return members, nil
}

// GetUser retrieves a directory user.
func (r *DirectoryRepository) GetUser(ctx context.Context, tenantID, userID string) (*domain.DirectoryUser, error) {
	query, args, err := psql.
		Select("tenant_id", "user_id", "email", "display_name", "is_active").
		From("directory_users").
		Where(sq.Eq{"tenant_id": tenantID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var user domain.DirectoryUser
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&user.TenantID,
		&user.UserID,
		&user.Email,
		&user.DisplayName,
		&user.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("query directory user: %w", err)
	}

	return &user, nil
}

// UpsertUser creates or replaces a directory user.
func (r *DirectoryRepository) UpsertUser(ctx context.Context, user domain.DirectoryUser) error {
	query, args, err := psql.
		Insert("directory_users").
		Columns("tenant_id", "user_id", "email", "display_name", "is_active").
		Values(user.TenantID, user.UserID, user.Email, user.DisplayName, user.IsActive).
		Suffix("ON CONFLICT (tenant_id, user_id) DO UPDATE SET " +
			"email = EXCLUDED.email, display_name = EXCLUDED.display_name, is_active = EXCLUDED.is_active").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert directory user: %w", err)
	}
	return nil
}

// AddGroupMember adds a user to a group. Adding an existing member is a no-op.
func (r *DirectoryRepository) AddGroupMember(ctx context.Context, tenantID, groupID, userID string) error {
	query, args, err := psql.
		Insert("group_members").
		Columns("tenant_id", "group_id", "user_id").
		Values(tenantID, groupID, userID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}
