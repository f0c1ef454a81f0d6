package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"trafficlane/auth"
	"trafficlane/escrow"
	"trafficlane/order"
	"trafficlane/permissions"
)

var (
	// ErrForbidden signals the actor may not perform the dispute operation.
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrOrderNotActive signals disputes may only target ACTIVE orders.
	ErrOrderNotActive = errors.New("dispute: order not active")
	// ErrEscrowUnavailable signals the order has no escrow to contest, or
	// the escrow already settled.
	ErrEscrowUnavailable = errors.New("dispute: escrow missing or settled")
	// ErrInvalidReason signals the reason text is outside the accepted length.
	ErrInvalidReason = errors.New("dispute: reason must be 20 to 1000 characters")
	// ErrInvalidDecision signals an unknown resolution decision.
	ErrInvalidDecision = errors.New("dispute: invalid decision")
)

const (
	minReasonLen = 20
	maxReasonLen = 1000
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserDirectory is the read access to accounts the service needs.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// OrderStore is the slice of the order repository the resolver drives:
// locked state reads and status writes inside its own transaction.
type OrderStore interface {
	GetStateTx(ctx context.Context, tx pgx.Tx, id string) (order.Snapshot, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, status order.Status, trackingURL *string) (order.Order, error)
	Get(ctx context.Context, id string) (order.Order, error)
}

// Service opens disputes against active orders and lets admins resolve
// them, driving the order back to a terminal (or active) state through
// the escrow ledger.
type Service struct {
	pool   TxBeginner
	repo   Repository
	orders OrderStore
	ledger escrow.Ledger
	users  UserDirectory
}

func NewService(pool TxBeginner, repo Repository, orders OrderStore, ledger escrow.Ledger, users UserDirectory) *Service {
	if ledger == nil {
		ledger = escrow.NewRepository()
	}
	return &Service{pool: pool, repo: repo, orders: orders, ledger: ledger, users: users}
}

// Open files a dispute for the buyer or seller of an ACTIVE order and
// freezes it: the dispute insert and the move to DISPUTED commit
// together. The order must still hold an unreleased escrow.
func (s *Service) Open(ctx context.Context, actorID, orderID, reason string) (Dispute, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return Dispute{}, err
	}

	reason = strings.TrimSpace(reason)
	if len(reason) < minReasonLen || len(reason) > maxReasonLen {
		return Dispute{}, ErrInvalidReason
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.orders.GetStateTx(ctx, tx, orderID)
	if err != nil {
		return Dispute{}, err
	}

	if !permissions.CanOpenDispute(*actor, snap.Order.PermissionInfo()) {
		// The predicate folds the ACTIVE requirement in; split the error
		// so callers can tell a state problem from an ownership problem.
		if snap.Order.Status != order.StatusActive {
			return Dispute{}, ErrOrderNotActive
		}
		return Dispute{}, ErrForbidden
	}
	if snap.Order.Status != order.StatusActive {
		return Dispute{}, ErrOrderNotActive
	}
	if !snap.HasEscrow || snap.EscrowReleased {
		return Dispute{}, ErrEscrowUnavailable
	}

	d, err := s.repo.CreateTx(ctx, tx, Dispute{
		OrderID:  orderID,
		OpenedBy: actor.ID,
		Reason:   reason,
	})
	if err != nil {
		return Dispute{}, err
	}

	if _, err := s.orders.UpdateStatusTx(ctx, tx, orderID, order.StatusDisputed, nil); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit tx: %w", err)
	}
	return d, nil
}

// ResolveParams carries the admin ruling.
type ResolveParams struct {
	Decision    Decision
	Resolution  string
	RefundBuyer bool
}

// Resolution pairs the terminal dispute with the order it settled.
type Resolution struct {
	Dispute Dispute
	Order   order.Order
}

// Resolve closes an OPEN dispute. RESOLVED with refund returns the funds
// to the buyer and cancels the order; RESOLVED without refund releases
// to the seller and completes it; REJECTED dismisses the dispute and the
// order resumes ACTIVE. The dispute row moves to its terminal status
// first so the escrow release no longer sees an open dispute; every
// write shares one transaction.
func (s *Service) Resolve(ctx context.Context, adminID, disputeID string, params ResolveParams) (Resolution, error) {
	admin, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return Resolution{}, err
	}
	if !permissions.CanResolveDispute(*admin) {
		return Resolution{}, ErrForbidden
	}
	if params.Decision != DecisionResolved && params.Decision != DecisionRejected {
		return Resolution{}, ErrInvalidDecision
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.GetForUpdateTx(ctx, tx, disputeID)
	if err != nil {
		return Resolution{}, err
	}
	if d.Status != StatusOpen {
		return Resolution{}, ErrAlreadyResolved
	}

	snap, err := s.orders.GetStateTx(ctx, tx, d.OrderID)
	if err != nil {
		return Resolution{}, err
	}
	if params.Decision == DecisionResolved && (!snap.HasEscrow || snap.EscrowReleased) {
		return Resolution{}, ErrEscrowUnavailable
	}

	resolved, err := s.repo.ResolveTx(ctx, tx, disputeID, Status(params.Decision), params.Resolution, admin.ID)
	if err != nil {
		return Resolution{}, err
	}

	var o order.Order
	switch {
	case params.Decision == DecisionRejected:
		o, err = s.orders.UpdateStatusTx(ctx, tx, d.OrderID, order.StatusActive, nil)
	case params.RefundBuyer:
		if err = s.ledger.RefundTx(ctx, tx, d.OrderID); err == nil {
			o, err = s.orders.UpdateStatusTx(ctx, tx, d.OrderID, order.StatusCancelled, nil)
		}
	default:
		if _, err = s.ledger.ReleaseTx(ctx, tx, d.OrderID, &admin.ID); err == nil {
			o, err = s.orders.UpdateStatusTx(ctx, tx, d.OrderID, order.StatusCompleted, nil)
		}
	}
	if err != nil {
		return Resolution{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Resolution{}, fmt.Errorf("dispute: commit tx: %w", err)
	}
	return Resolution{Dispute: resolved, Order: o}, nil
}

// Get fetches a dispute; only the order's parties and admins may read it.
func (s *Service) Get(ctx context.Context, actorID, disputeID string) (Dispute, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return Dispute{}, err
	}

	d, err := s.repo.Get(ctx, disputeID)
	if err != nil {
		return Dispute{}, err
	}

	o, err := s.orders.Get(ctx, d.OrderID)
	if err != nil {
		return Dispute{}, err
	}
	if !permissions.CanViewOrder(*actor, o.PermissionInfo()) {
		return Dispute{}, ErrForbidden
	}
	return d, nil
}

// List returns dispute pages. Non-admin callers see only disputes on
// orders they participate in.
func (s *Service) List(ctx context.Context, actorID string, filters Filters) ([]Dispute, int, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}
	if actor.IsBanned {
		return nil, 0, ErrForbidden
	}
	if actor.Role != auth.RoleAdmin {
		filters.ParticipantID = actor.ID
	}

	return s.repo.List(ctx, filters)
}
