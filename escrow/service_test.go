package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"trafficlane/test/fakes"
)

type fakeLedger struct {
	createErr  error
	releaseErr error
	refundErr  error
	created    []CreateParams
	released   []string
	refunded   []string
	escrow     Escrow
}

func (f *fakeLedger) CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Escrow, error) {
	if f.createErr != nil {
		return Escrow{}, f.createErr
	}
	f.created = append(f.created, params)
	return f.escrow, nil
}

func (f *fakeLedger) ReleaseTx(ctx context.Context, tx pgx.Tx, orderID string, releasedBy *string) (Escrow, error) {
	if f.releaseErr != nil {
		return Escrow{}, f.releaseErr
	}
	f.released = append(f.released, orderID)
	return f.escrow, nil
}

func (f *fakeLedger) RefundTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunded = append(f.refunded, orderID)
	return nil
}

func (f *fakeLedger) GetByOrderTx(ctx context.Context, tx pgx.Tx, orderID string) (Escrow, error) {
	return f.escrow, nil
}

func TestService_CreateCommits(t *testing.T) {
	pool := &fakes.Pool{}
	ledger := &fakeLedger{escrow: Escrow{ID: "esc-1", OrderID: "order-1", Amount: 10}}
	svc := NewService(pool, ledger)

	esc, err := svc.Create(context.Background(), "order-1", 10, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if esc.ID != "esc-1" {
		t.Fatalf("unexpected escrow: %+v", esc)
	}
	if pool.Tx == nil || !pool.Tx.Committed {
		t.Fatal("expected transaction to commit")
	}
	if len(ledger.created) != 1 || ledger.created[0].OrderID != "order-1" {
		t.Fatalf("unexpected create params: %+v", ledger.created)
	}
}

func TestService_CreateRollsBackOnDuplicate(t *testing.T) {
	pool := &fakes.Pool{}
	ledger := &fakeLedger{createErr: ErrAlreadyExists}
	svc := NewService(pool, ledger)

	_, err := svc.Create(context.Background(), "order-1", 10, "USD")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if pool.Tx == nil {
		t.Fatal("expected Begin to provide transaction")
	}
	if pool.Tx.Committed {
		t.Fatal("expected commit to be skipped on duplicate escrow")
	}
	if !pool.Tx.Rolled {
		t.Fatal("expected rollback")
	}
}

func TestService_ReleaseAlreadyReleased(t *testing.T) {
	pool := &fakes.Pool{}
	ledger := &fakeLedger{releaseErr: ErrAlreadyReleased}
	svc := NewService(pool, ledger)

	_, err := svc.Release(context.Background(), "order-1", nil)
	if !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
	if pool.Tx.Committed {
		t.Fatal("expected no commit after failed release")
	}
}

func TestService_ReleaseBlockedByDispute(t *testing.T) {
	pool := &fakes.Pool{}
	ledger := &fakeLedger{releaseErr: ErrDisputeOpen}
	svc := NewService(pool, ledger)

	_, err := svc.Release(context.Background(), "order-1", nil)
	if !errors.Is(err, ErrDisputeOpen) {
		t.Fatalf("expected ErrDisputeOpen, got %v", err)
	}
}

func TestService_RefundCommits(t *testing.T) {
	pool := &fakes.Pool{}
	ledger := &fakeLedger{}
	svc := NewService(pool, ledger)

	if err := svc.Refund(context.Background(), "order-9"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !pool.Tx.Committed {
		t.Fatal("expected transaction to commit")
	}
	if len(ledger.refunded) != 1 || ledger.refunded[0] != "order-9" {
		t.Fatalf("unexpected refunds: %+v", ledger.refunded)
	}
}

func TestService_RefundReleasedEscrow(t *testing.T) {
	pool := &fakes.Pool{}
	ledger := &fakeLedger{refundErr: ErrAlreadyReleased}
	svc := NewService(pool, ledger)

	err := svc.Refund(context.Background(), "order-9")
	if !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
	if pool.Tx.Committed {
		t.Fatal("expected rollback, not commit")
	}
}
