package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrAlreadyExists signals the order already has a dispute.
	ErrAlreadyExists = errors.New("dispute: already exists for order")
	// ErrAlreadyResolved signals the dispute reached a terminal status.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
)

// Repository provides access to disputes. Write methods take the
// caller's transaction so the dispute write, the order-status write, and
// any escrow write share fate.
type Repository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d Dispute) (Dispute, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (Dispute, error)
	ResolveTx(ctx context.Context, tx pgx.Tx, id string, status Status, resolution string, resolvedBy string) (Dispute, error)
	Get(ctx context.Context, id string) (Dispute, error)
	List(ctx context.Context, filters Filters) ([]Dispute, int, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const disputeColumns = `id, order_id, opened_by, reason, status, resolution, resolved_by, created_at, updated_at`

// CreateTx opens a dispute. The unique order_id constraint enforces one
// dispute per order for the order's whole life.
func (r *PGRepository) CreateTx(ctx context.Context, tx pgx.Tx, d Dispute) (Dispute, error) {
	const query = `
		INSERT INTO disputes (order_id, opened_by, reason)
		VALUES ($1, $2, $3)
		RETURNING ` + disputeColumns

	created, err := scanDispute(tx.QueryRow(ctx, query, d.OrderID, d.OpenedBy, d.Reason))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Dispute{}, ErrAlreadyExists
		}
		return Dispute{}, fmt.Errorf("dispute: create: %w", err)
	}
	return created, nil
}

// GetForUpdateTx locks the dispute row for the resolving transaction.
func (r *PGRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (Dispute, error) {
	const query = `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`

	d, err := scanDispute(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get for update: %w", err)
	}
	return d, nil
}

// ResolveTx moves an OPEN dispute to its terminal status. The
// conditional UPDATE re-checks OPEN, so two concurrent resolutions
// cannot both win; a miss is classified into not-found vs already
// resolved.
func (r *PGRepository) ResolveTx(ctx context.Context, tx pgx.Tx, id string, status Status, resolution string, resolvedBy string) (Dispute, error) {
	const query = `
		UPDATE disputes
		SET status = $2,
		    resolution = $3,
		    resolved_by = $4,
		    updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + disputeColumns

	d, err := scanDispute(tx.QueryRow(ctx, query, id, status, resolution, resolvedBy))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM disputes WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: resolve fetch: %w", err)
	}
	return Dispute{}, ErrAlreadyResolved
}

// Get fetches a dispute outside any transaction.
func (r *PGRepository) Get(ctx context.Context, id string) (Dispute, error) {
	const query = `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`

	d, err := scanDispute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}
	return d, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Dispute, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	base := `SELECT d.id, d.order_id, d.opened_by, d.reason, d.status, d.resolution, d.resolved_by, d.created_at, d.updated_at
	         FROM disputes d`
	where := []string{"1=1"}
	args := []any{}

	if filters.ParticipantID != "" {
		base += ` JOIN orders o ON o.id = d.order_id`
		where = append(where, fmt.Sprintf("(o.buyer_id=$%d OR o.seller_id=$%d)", len(args)+1, len(args)+1))
		args = append(args, filters.ParticipantID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("d.status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY d.created_at DESC LIMIT %d OFFSET %d`, base, whereClause, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("dispute: query list: %w", err)
	}
	defer rows.Close()

	list := []Dispute{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("dispute: scan: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("dispute: iterate: %w", err)
	}

	countBase := `SELECT COUNT(*) FROM disputes d`
	if filters.ParticipantID != "" {
		countBase += ` JOIN orders o ON o.id = d.order_id`
	}
	var total int
	if err := r.pool.QueryRow(ctx, countBase+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dispute: count list: %w", err)
	}

	return list, total, nil
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var d Dispute
	return d, row.Scan(
		&d.ID,
		&d.OrderID,
		&d.OpenedBy,
		&d.Reason,
		&d.Status,
		&d.Resolution,
		&d.ResolvedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
}
