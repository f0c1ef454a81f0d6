package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the listing does not exist.
	ErrNotFound = errors.New("listing: not found")
	// ErrLiveOrders signals deletion is blocked while open orders
	// still reference the listing.
	ErrLiveOrders = errors.New("listing: live orders reference listing")
)

// UpdateParams carries the mutable listing fields; nil means "keep".
type UpdateParams struct {
	Title       *string
	Description *string
	Price       *float64
	MinOrder    *int
	MaxDaily    *int
	IsActive    *bool
}

// Repository provides access to the listing catalog.
type Repository interface {
	Create(ctx context.Context, l Listing) (Listing, error)
	GetByID(ctx context.Context, id string) (Listing, error)
	List(ctx context.Context, filters Filters) ([]Listing, int, error)
	Update(ctx context.Context, id string, params UpdateParams) (Listing, error)
	Delete(ctx context.Context, id string) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listingColumns = `id, seller_id, title, description, traffic_type, lane, price, min_order, max_daily, is_active, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, l Listing) (Listing, error) {
	const query = `
		INSERT INTO listings (seller_id, title, description, traffic_type, lane, price, min_order, max_daily, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + listingColumns

	row := r.pool.QueryRow(ctx, query,
		l.SellerID,
		l.Title,
		l.Description,
		l.TrafficType,
		l.Lane,
		l.Price,
		l.MinOrder,
		l.MaxDaily,
		l.IsActive,
	)

	created, err := scanListing(row)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get by id: %w", err)
	}
	return l, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Listing, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	base := `SELECT ` + listingColumns + ` FROM listings`
	where := []string{"1=1"}
	args := []any{}

	if filters.SellerID != "" {
		where = append(where, fmt.Sprintf("seller_id=$%d", len(args)+1))
		args = append(args, filters.SellerID)
	}
	if filters.Lane != "" {
		where = append(where, fmt.Sprintf("lane=$%d", len(args)+1))
		args = append(args, filters.Lane)
	}
	if filters.TrafficType != "" {
		where = append(where, fmt.Sprintf("traffic_type=$%d", len(args)+1))
		args = append(args, filters.TrafficType)
	}
	if filters.ActiveOnly {
		where = append(where, "is_active=true")
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, whereClause, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing: query list: %w", err)
	}
	defer rows.Close()

	list := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("listing: scan: %w", err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing: iterate: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM listings%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("listing: count list: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, params UpdateParams) (Listing, error) {
	set := []string{"updated_at = now()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Title != nil {
		add("title", *params.Title)
	}
	if params.Description != nil {
		add("description", *params.Description)
	}
	if params.Price != nil {
		add("price", *params.Price)
	}
	if params.MinOrder != nil {
		add("min_order", *params.MinOrder)
	}
	if params.MaxDaily != nil {
		add("max_daily", *params.MaxDaily)
	}
	if params.IsActive != nil {
		add("is_active", *params.IsActive)
	}

	query := fmt.Sprintf(`UPDATE listings SET %s WHERE id = $1 RETURNING %s`, strings.Join(set, ", "), listingColumns)

	l, err := scanListing(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: update: %w", err)
	}
	return l, nil
}

// Delete removes a listing unless a PENDING, ACTIVE, or DISPUTED order
// still references it. The existence check and the delete run as one
// statement so a concurrent purchase cannot slip between them.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	const query = `
		DELETE FROM listings
		WHERE id = $1
		  AND NOT EXISTS (
		    SELECT 1 FROM orders
		    WHERE listing_id = $1 AND status IN ('PENDING', 'ACTIVE', 'DISPUTED')
		  )`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("listing: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("listing: classify delete: %w", err)
		}
		if exists {
			return ErrLiveOrders
		}
		return ErrNotFound
	}
	return nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	return l, row.Scan(
		&l.ID,
		&l.SellerID,
		&l.Title,
		&l.Description,
		&l.TrafficType,
		&l.Lane,
		&l.Price,
		&l.MinOrder,
		&l.MaxDaily,
		&l.IsActive,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}
