package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the order does not exist.
	ErrNotFound = errors.New("order: not found")
)

// Repository provides access to orders. Transition-related methods take
// the caller's transaction so the order write shares fate with the
// escrow and dispute writes around it.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o Order) (Order, error)
	GetStateTx(ctx context.Context, tx pgx.Tx, id string) (Snapshot, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, status Status, trackingURL *string) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filters Filters) ([]Order, int, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const orderColumns = `id, buyer_id, seller_id, listing_id, lane, quantity, destination_url, tracking_url, total_price, status, created_at, updated_at`

// CreateTx inserts the order in PENDING inside the caller's transaction.
// The escrow funding that follows commits or rolls back with it, so an
// order never becomes visible without its escrow.
func (r *PGRepository) CreateTx(ctx context.Context, tx pgx.Tx, o Order) (Order, error) {
	const query = `
		INSERT INTO orders (buyer_id, seller_id, listing_id, lane, quantity, destination_url, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING')
		RETURNING ` + orderColumns

	row := tx.QueryRow(ctx, query,
		o.BuyerID,
		o.SellerID,
		o.ListingID,
		o.Lane,
		o.Quantity,
		o.DestinationURL,
		o.TotalPrice,
	)

	created, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("order: create: %w", err)
	}
	return created, nil
}

// GetStateTx locks the order row and reads the escrow and dispute facts
// in the same statement, so every precondition a transition re-checks
// comes from one consistent locked view.
func (r *PGRepository) GetStateTx(ctx context.Context, tx pgx.Tx, id string) (Snapshot, error) {
	const query = `
		SELECT o.id, o.buyer_id, o.seller_id, o.listing_id, o.lane, o.quantity, o.destination_url,
		       o.tracking_url, o.total_price, o.status, o.created_at, o.updated_at,
		       e.id IS NOT NULL,
		       COALESCE(e.released, false),
		       EXISTS (SELECT 1 FROM disputes d WHERE d.order_id = o.id AND d.status = 'OPEN')
		FROM orders o
		LEFT JOIN escrows e ON e.order_id = o.id
		WHERE o.id = $1
		FOR UPDATE OF o`

	var snap Snapshot
	err := tx.QueryRow(ctx, query, id).Scan(
		&snap.Order.ID,
		&snap.Order.BuyerID,
		&snap.Order.SellerID,
		&snap.Order.ListingID,
		&snap.Order.Lane,
		&snap.Order.Quantity,
		&snap.Order.DestinationURL,
		&snap.Order.TrackingURL,
		&snap.Order.TotalPrice,
		&snap.Order.Status,
		&snap.Order.CreatedAt,
		&snap.Order.UpdatedAt,
		&snap.HasEscrow,
		&snap.EscrowReleased,
		&snap.DisputeOpen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("order: get state: %w", err)
	}
	return snap, nil
}

// UpdateStatusTx writes the status (and optionally the tracking URL)
// inside the caller's transaction.
func (r *PGRepository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, status Status, trackingURL *string) (Order, error) {
	const query = `
		UPDATE orders
		SET status = $2,
		    tracking_url = COALESCE($3, tracking_url),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	o, err := scanOrder(tx.QueryRow(ctx, query, id, status, trackingURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: update status: %w", err)
	}
	return o, nil
}

// Get fetches an order outside any transaction.
func (r *PGRepository) Get(ctx context.Context, id string) (Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Order, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	base := `SELECT ` + orderColumns + ` FROM orders`
	where := []string{"1=1"}
	args := []any{}

	if filters.ParticipantID != "" {
		where = append(where, fmt.Sprintf("(buyer_id=$%d OR seller_id=$%d)", len(args)+1, len(args)+1))
		args = append(args, filters.ParticipantID)
	}
	if filters.BuyerID != "" {
		where = append(where, fmt.Sprintf("buyer_id=$%d", len(args)+1))
		args = append(args, filters.BuyerID)
	}
	if filters.SellerID != "" {
		where = append(where, fmt.Sprintf("seller_id=$%d", len(args)+1))
		args = append(args, filters.SellerID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, whereClause, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("order: query list: %w", err)
	}
	defer rows.Close()

	list := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("order: scan: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("order: iterate: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("order: count list: %w", err)
	}

	return list, total, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	return o, row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.SellerID,
		&o.ListingID,
		&o.Lane,
		&o.Quantity,
		&o.DestinationURL,
		&o.TrackingURL,
		&o.TotalPrice,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}
