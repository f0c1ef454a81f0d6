package seller

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested seller profile does not exist.
	ErrNotFound = errors.New("seller: profile not found")
	// ErrAlreadyExists signals the user already owns a seller profile.
	ErrAlreadyExists = errors.New("seller: profile already exists")
)

// Repository provides access to seller profiles.
type Repository interface {
	Create(ctx context.Context, profile Profile) (Profile, error)
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	GetByID(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context, limit int) ([]Profile, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = `id, user_id, display_name, bio, traffic_types, allowed_lanes, compliance_agreed, reputation_clean, reputation_private, created_at, updated_at`

// Create inserts a profile. The unique constraint on user_id guarantees
// at most one profile per user.
func (r *PGRepository) Create(ctx context.Context, profile Profile) (Profile, error) {
	const insertSQL = `
		INSERT INTO seller_profiles (user_id, display_name, bio, traffic_types, allowed_lanes, compliance_agreed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + profileColumns

	row := r.pool.QueryRow(ctx, insertSQL,
		profile.UserID,
		profile.DisplayName,
		profile.Bio,
		profile.TrafficTypes,
		profile.AllowedLanes,
		profile.ComplianceAgreed,
	)

	created, err := scanProfile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrAlreadyExists
		}
		return Profile{}, fmt.Errorf("seller: create profile: %w", err)
	}

	return created, nil
}

// GetByUserID fetches the profile owned by the given user.
func (r *PGRepository) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM seller_profiles WHERE user_id = $1`

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("seller: get by user id: %w", err)
	}
	return profile, nil
}

// GetByID fetches a profile by its primary key.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM seller_profiles WHERE id = $1`

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("seller: get by id: %w", err)
	}
	return profile, nil
}

// List fetches up to limit profiles ordered by display name.
func (r *PGRepository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `SELECT ` + profileColumns + ` FROM seller_profiles ORDER BY display_name ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("seller: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("seller: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("seller: iterate profiles: %w", err)
	}

	return profiles, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	return p, row.Scan(
		&p.ID,
		&p.UserID,
		&p.DisplayName,
		&p.Bio,
		&p.TrafficTypes,
		&p.AllowedLanes,
		&p.ComplianceAgreed,
		&p.ReputationClean,
		&p.ReputationPrivate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}
