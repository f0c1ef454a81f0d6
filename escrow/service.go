package escrow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger defines the transaction-scoped escrow operations the service
// (and the order/dispute services) depend on.
type Ledger interface {
	CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Escrow, error)
	ReleaseTx(ctx context.Context, tx pgx.Tx, orderID string, releasedBy *string) (Escrow, error)
	RefundTx(ctx context.Context, tx pgx.Tx, orderID string) error
	GetByOrderTx(ctx context.Context, tx pgx.Tx, orderID string) (Escrow, error)
}

// Service wraps the ledger operations in their own transactions for
// callers that are not already inside one.
type Service struct {
	pool TxBeginner
	repo Ledger
}

func NewService(pool TxBeginner, repo Ledger) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo}
}

// Create funds the order in a standalone transaction.
func (s *Service) Create(ctx context.Context, orderID string, amount float64, currency string) (Escrow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := s.repo.CreateTx(ctx, tx, CreateParams{OrderID: orderID, Amount: amount, Currency: currency})
	if err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit tx: %w", err)
	}
	return esc, nil
}

// Release settles the escrow to the seller in a standalone transaction.
func (s *Service) Release(ctx context.Context, orderID string, releasedBy *string) (Escrow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := s.repo.ReleaseTx(ctx, tx, orderID, releasedBy)
	if err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit tx: %w", err)
	}
	return esc, nil
}

// Refund returns held funds to the buyer in a standalone transaction.
func (s *Service) Refund(ctx context.Context, orderID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.RefundTx(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("escrow: commit tx: %w", err)
	}
	return nil
}

// GetByOrder reads the escrow attached to an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (Escrow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	return s.repo.GetByOrderTx(ctx, tx, orderID)
}
