package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrOrderNotFound signals the order the escrow belongs to is absent.
	ErrOrderNotFound = errors.New("escrow: order not found")
	// ErrNotFound signals no escrow exists for the order.
	ErrNotFound = errors.New("escrow: not found")
	// ErrAlreadyExists signals the order already has an escrow (at most one, ever).
	ErrAlreadyExists = errors.New("escrow: already exists for order")
	// ErrAlreadyReleased signals the escrow was released and cannot settle again.
	ErrAlreadyReleased = errors.New("escrow: already released")
	// ErrDisputeOpen signals release is blocked while a dispute is open.
	ErrDisputeOpen = errors.New("escrow: open dispute blocks release")
)

// CreateParams contains the write parameters for funding an order.
type CreateParams struct {
	OrderID  string
	Amount   float64
	Currency string
}

// Repository executes escrow state changes. Every method takes the
// caller's transaction so the escrow write and the order-status write
// commit or roll back together; the first statement locks the order row
// to serialize concurrent transitions on the same order.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const escrowColumns = `id, order_id, amount, currency, released, released_by, created_at, updated_at`

// CreateTx funds the order: inserts the escrow row and moves the order to
// ACTIVE. The unique order_id constraint enforces at most one escrow per
// order for the order's whole life.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Escrow, error) {
	if params.OrderID == "" {
		return Escrow{}, fmt.Errorf("escrow: missing order id")
	}
	if params.Amount <= 0 {
		return Escrow{}, fmt.Errorf("escrow: amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	if err := lockOrder(ctx, tx, params.OrderID); err != nil {
		return Escrow{}, err
	}

	const insertSQL = `
		INSERT INTO escrows (order_id, amount, currency)
		VALUES ($1, $2, $3)
		RETURNING ` + escrowColumns

	esc, err := scanEscrow(tx.QueryRow(ctx, insertSQL, params.OrderID, params.Amount, currency))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Escrow{}, ErrAlreadyExists
		}
		return Escrow{}, fmt.Errorf("escrow: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = 'ACTIVE', updated_at = now() WHERE id = $1`, params.OrderID); err != nil {
		return Escrow{}, fmt.Errorf("escrow: activate order: %w", err)
	}

	return esc, nil
}

// ReleaseTx settles the escrow to the seller: flips released to true and
// moves the order to COMPLETED. The conditional UPDATE re-checks released
// under the order lock, so a concurrent release or refund cannot both win.
func (r *Repository) ReleaseTx(ctx context.Context, tx pgx.Tx, orderID string, releasedBy *string) (Escrow, error) {
	if err := lockOrder(ctx, tx, orderID); err != nil {
		return Escrow{}, err
	}

	var disputeOpen bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM disputes WHERE order_id = $1 AND status = 'OPEN')`,
		orderID,
	).Scan(&disputeOpen); err != nil {
		return Escrow{}, fmt.Errorf("escrow: check dispute: %w", err)
	}
	if disputeOpen {
		return Escrow{}, ErrDisputeOpen
	}

	const releaseSQL = `
		UPDATE escrows
		SET released = true,
		    released_by = $2,
		    updated_at = now()
		WHERE order_id = $1 AND released = false
		RETURNING ` + escrowColumns

	esc, err := scanEscrow(tx.QueryRow(ctx, releaseSQL, orderID, releasedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, r.classifyMissing(ctx, tx, orderID)
		}
		return Escrow{}, fmt.Errorf("escrow: release: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = 'COMPLETED', updated_at = now() WHERE id = $1`, orderID); err != nil {
		return Escrow{}, fmt.Errorf("escrow: complete order: %w", err)
	}

	return esc, nil
}

// RefundTx returns the held funds to the buyer: deletes the escrow row
// (a refund means the escrow never completes) and moves the order to
// CANCELLED. A released escrow cannot be refunded.
func (r *Repository) RefundTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	if err := lockOrder(ctx, tx, orderID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM escrows WHERE order_id = $1 AND released = false`, orderID)
	if err != nil {
		return fmt.Errorf("escrow: refund delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMissing(ctx, tx, orderID)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = 'CANCELLED', updated_at = now() WHERE id = $1`, orderID); err != nil {
		return fmt.Errorf("escrow: cancel order: %w", err)
	}

	return nil
}

// GetByOrderTx reads the escrow for an order inside the caller's transaction.
func (r *Repository) GetByOrderTx(ctx context.Context, tx pgx.Tx, orderID string) (Escrow, error) {
	const query = `SELECT ` + escrowColumns + ` FROM escrows WHERE order_id = $1`

	esc, err := scanEscrow(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: get by order: %w", err)
	}
	return esc, nil
}

// classifyMissing distinguishes "no escrow row" from "escrow already
// released" after a conditional write matched nothing.
func (r *Repository) classifyMissing(ctx context.Context, tx pgx.Tx, orderID string) error {
	var released bool
	err := tx.QueryRow(ctx, `SELECT released FROM escrows WHERE order_id = $1`, orderID).Scan(&released)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("escrow: classify state: %w", err)
	}
	if released {
		return ErrAlreadyReleased
	}
	return ErrNotFound
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("escrow: lock order: %w", err)
	}
	return nil
}

func scanEscrow(row pgx.Row) (Escrow, error) {
	var e Escrow
	return e, row.Scan(
		&e.ID,
		&e.OrderID,
		&e.Amount,
		&e.Currency,
		&e.Released,
		&e.ReleasedBy,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
}
