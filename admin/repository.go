package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trafficlane/auth"
)

// Repository applies moderation writes to accounts.
type Repository interface {
	SetApproved(ctx context.Context, userID string, approved bool) (auth.User, error)
	SetBanned(ctx context.Context, userID string, banned bool) (auth.User, error)
	SetLaneAccess(ctx context.Context, userID string, lane auth.Lane) (auth.User, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, password_hash, role, lane_access, is_approved, is_banned, created_at, updated_at`

func (r *PGRepository) SetApproved(ctx context.Context, userID string, approved bool) (auth.User, error) {
	return r.updateUser(ctx, `UPDATE users SET is_approved = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns, userID, approved)
}

func (r *PGRepository) SetBanned(ctx context.Context, userID string, banned bool) (auth.User, error) {
	return r.updateUser(ctx, `UPDATE users SET is_banned = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns, userID, banned)
}

func (r *PGRepository) SetLaneAccess(ctx context.Context, userID string, lane auth.Lane) (auth.User, error) {
	return r.updateUser(ctx, `UPDATE users SET lane_access = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns, userID, lane)
}

func (r *PGRepository) updateUser(ctx context.Context, query string, userID string, arg any) (auth.User, error) {
	var u auth.User
	err := r.pool.QueryRow(ctx, query, userID, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.LaneAccess,
		&u.IsApproved,
		&u.IsBanned,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("admin: update user: %w", err)
	}
	return u, nil
}
