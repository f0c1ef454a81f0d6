package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"

	"github.com/jackc/pgx/v5"

	"trafficlane/auth"
	"trafficlane/escrow"
	"trafficlane/listing"
	"trafficlane/permissions"
	"trafficlane/seller"
)

var (
	// ErrForbidden signals the actor may not perform the order operation.
	ErrForbidden = errors.New("order: forbidden")
	// ErrListingInactive signals the listing is not purchasable.
	ErrListingInactive = errors.New("order: listing not active")
	// ErrQuantityOutOfRange signals quantity violates the listing's min/max bounds.
	ErrQuantityOutOfRange = errors.New("order: quantity outside listing bounds")
	// ErrSelfPurchase signals the buyer is the listing's seller.
	ErrSelfPurchase = errors.New("order: cannot purchase own listing")
	// ErrSellerUnavailable signals the seller is banned or not approved.
	ErrSellerUnavailable = errors.New("order: seller unavailable")
	// ErrInvalidDestination signals the destination URL is missing or malformed.
	ErrInvalidDestination = errors.New("order: invalid destination url")
	// ErrTerminalState signals the order is COMPLETED or CANCELLED and frozen.
	ErrTerminalState = errors.New("order: terminal state")
	// ErrInvalidTransition signals the requested status is not reachable
	// from the current one.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrDisputeOpen signals an open dispute freezes the order.
	ErrDisputeOpen = errors.New("order: open dispute freezes order")
	// ErrTrackingRequired signals activation needs a tracking URL.
	ErrTrackingRequired = errors.New("order: tracking url required")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserDirectory is the read access to accounts the service needs.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// Catalog resolves listings at purchase time.
type Catalog interface {
	GetByID(ctx context.Context, id string) (listing.Listing, error)
}

// ProfileDirectory resolves the seller profile owning a listing.
type ProfileDirectory interface {
	GetByID(ctx context.Context, id string) (seller.Profile, error)
}

// Service owns the order lifecycle. Every transition runs inside one
// transaction whose first read locks the order row, so concurrent
// transitions on the same order serialize.
type Service struct {
	pool     TxBeginner
	repo     Repository
	ledger   escrow.Ledger
	users    UserDirectory
	catalog  Catalog
	profiles ProfileDirectory
}

func NewService(pool TxBeginner, repo Repository, ledger escrow.Ledger, users UserDirectory, catalog Catalog, profiles ProfileDirectory) *Service {
	if ledger == nil {
		ledger = escrow.NewRepository()
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		ledger:   ledger,
		users:    users,
		catalog:  catalog,
		profiles: profiles,
	}
}

// CreateParams contains the purchase request.
type CreateParams struct {
	ListingID      string
	Quantity       int
	DestinationURL string
}

// Create validates the purchase, inserts the order in PENDING, and funds
// its escrow — all in one transaction. If escrow funding fails the
// rollback removes the order, so an order never exists without escrow.
// Every validation runs before the transaction opens.
func (s *Service) Create(ctx context.Context, buyerID string, params CreateParams) (Order, error) {
	buyer, err := s.users.GetUserByID(ctx, buyerID)
	if err != nil {
		return Order{}, err
	}
	if !permissions.CanPurchase(*buyer) {
		return Order{}, ErrForbidden
	}

	l, err := s.catalog.GetByID(ctx, params.ListingID)
	if err != nil {
		return Order{}, err
	}
	if !l.IsActive {
		return Order{}, ErrListingInactive
	}
	if !permissions.CanAccessLane(*buyer, auth.Lane(l.Lane)) {
		return Order{}, ErrForbidden
	}

	profile, err := s.profiles.GetByID(ctx, l.SellerID)
	if err != nil {
		return Order{}, err
	}
	sellerUser, err := s.users.GetUserByID(ctx, profile.UserID)
	if err != nil {
		return Order{}, err
	}
	if sellerUser.IsBanned || !sellerUser.IsApproved {
		return Order{}, ErrSellerUnavailable
	}
	if sellerUser.ID == buyer.ID {
		return Order{}, ErrSelfPurchase
	}

	if params.Quantity < l.MinOrder || params.Quantity > l.MaxDaily {
		return Order{}, ErrQuantityOutOfRange
	}
	if err := validateDestination(params.DestinationURL); err != nil {
		return Order{}, err
	}

	// Price is quoted per 1000 visitors.
	totalPrice := roundCents(l.Price * float64(params.Quantity) / 1000)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.CreateTx(ctx, tx, Order{
		BuyerID:        buyer.ID,
		SellerID:       sellerUser.ID,
		ListingID:      l.ID,
		Lane:           l.Lane,
		Quantity:       params.Quantity,
		DestinationURL: params.DestinationURL,
		TotalPrice:     totalPrice,
	})
	if err != nil {
		return Order{}, err
	}

	if _, err := s.ledger.CreateTx(ctx, tx, escrow.CreateParams{
		OrderID: created.ID,
		Amount:  totalPrice,
	}); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("order: commit tx: %w", err)
	}

	created.Status = StatusActive
	return created, nil
}

// UpdateParams contains a requested transition. An empty Status with a
// TrackingURL updates tracking without changing state.
type UpdateParams struct {
	Status      Status
	TrackingURL *string
}

// UpdateResult carries the updated order plus a non-fatal escrow
// bookkeeping note: completing an order whose escrow already settled
// still records the completion, with the escrow condition surfaced as a
// warning instead of failing the request.
type UpdateResult struct {
	Order         Order
	EscrowWarning string
}

// Update is the single transition entrypoint. It locks the order,
// re-checks every precondition from the locked snapshot, and applies the
// order/escrow writes atomically.
func (s *Service) Update(ctx context.Context, actorID, orderID string, params UpdateParams) (UpdateResult, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return UpdateResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.repo.GetStateTx(ctx, tx, orderID)
	if err != nil {
		return UpdateResult{}, err
	}

	if !permissions.CanManageOrder(*actor, snap.Order.PermissionInfo()) {
		return UpdateResult{}, ErrForbidden
	}
	if snap.Order.Status.Terminal() {
		return UpdateResult{}, ErrTerminalState
	}

	isAdmin := actor.Role == auth.RoleAdmin
	if snap.DisputeOpen && !isAdmin {
		return UpdateResult{}, ErrDisputeOpen
	}

	var result UpdateResult
	switch params.Status {
	case "":
		result, err = s.updateTracking(ctx, tx, *actor, snap, params.TrackingURL)
	case StatusActive:
		result, err = s.activate(ctx, tx, *actor, snap, params.TrackingURL)
	case StatusCompleted:
		result, err = s.complete(ctx, tx, *actor, snap)
	case StatusCancelled:
		result, err = s.cancel(ctx, tx, *actor, snap)
	default:
		// PENDING and DISPUTED are never reachable through Update;
		// DISPUTED belongs to the dispute resolver.
		return UpdateResult{}, ErrInvalidTransition
	}
	if err != nil {
		return UpdateResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UpdateResult{}, fmt.Errorf("order: commit tx: %w", err)
	}
	return result, nil
}

func (s *Service) updateTracking(ctx context.Context, tx pgx.Tx, actor auth.User, snap Snapshot, trackingURL *string) (UpdateResult, error) {
	if trackingURL == nil {
		return UpdateResult{}, ErrInvalidTransition
	}
	if actor.ID != snap.Order.SellerID && actor.Role != auth.RoleAdmin {
		return UpdateResult{}, ErrForbidden
	}

	o, err := s.repo.UpdateStatusTx(ctx, tx, snap.Order.ID, snap.Order.Status, trackingURL)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Order: o}, nil
}

// activate marks delivery started. Seller-only; requires a tracking URL
// supplied now or already stored, and never proceeds under an open
// dispute, admin or not.
func (s *Service) activate(ctx context.Context, tx pgx.Tx, actor auth.User, snap Snapshot, trackingURL *string) (UpdateResult, error) {
	if actor.ID != snap.Order.SellerID && actor.Role != auth.RoleAdmin {
		return UpdateResult{}, ErrForbidden
	}
	if snap.DisputeOpen {
		return UpdateResult{}, ErrDisputeOpen
	}
	if snap.Order.Status != StatusPending && snap.Order.Status != StatusActive {
		return UpdateResult{}, ErrInvalidTransition
	}
	if trackingURL == nil && snap.Order.TrackingURL == nil {
		return UpdateResult{}, ErrTrackingRequired
	}

	o, err := s.repo.UpdateStatusTx(ctx, tx, snap.Order.ID, StatusActive, trackingURL)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Order: o}, nil
}

// complete settles the order for the buyer (or an admin). A missing or
// already-released escrow does not fail the request: the status still
// moves to COMPLETED and the condition is reported as a warning.
func (s *Service) complete(ctx context.Context, tx pgx.Tx, actor auth.User, snap Snapshot) (UpdateResult, error) {
	isAdmin := actor.Role == auth.RoleAdmin
	if actor.ID != snap.Order.BuyerID && !isAdmin {
		return UpdateResult{}, ErrForbidden
	}
	if snap.Order.Status != StatusActive {
		return UpdateResult{}, ErrInvalidTransition
	}

	var releasedBy *string
	if isAdmin {
		releasedBy = &actor.ID
	}

	var warning string
	if _, err := s.ledger.ReleaseTx(ctx, tx, snap.Order.ID, releasedBy); err != nil {
		switch {
		case errors.Is(err, escrow.ErrNotFound), errors.Is(err, escrow.ErrAlreadyReleased):
			warning = err.Error()
		case errors.Is(err, escrow.ErrDisputeOpen):
			return UpdateResult{}, ErrDisputeOpen
		default:
			return UpdateResult{}, err
		}
	}

	o, err := s.repo.UpdateStatusTx(ctx, tx, snap.Order.ID, StatusCompleted, nil)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Order: o, EscrowWarning: warning}, nil
}

// cancel refunds and closes the order. Buyers may cancel only while the
// order is still PENDING; admins may also cancel an ACTIVE order.
func (s *Service) cancel(ctx context.Context, tx pgx.Tx, actor auth.User, snap Snapshot) (UpdateResult, error) {
	isAdmin := actor.Role == auth.RoleAdmin
	if !isAdmin {
		if actor.ID != snap.Order.BuyerID {
			return UpdateResult{}, ErrForbidden
		}
		if snap.Order.Status != StatusPending {
			return UpdateResult{}, ErrInvalidTransition
		}
	} else if snap.Order.Status != StatusPending && snap.Order.Status != StatusActive {
		return UpdateResult{}, ErrInvalidTransition
	}

	var warning string
	if err := s.ledger.RefundTx(ctx, tx, snap.Order.ID); err != nil {
		switch {
		case errors.Is(err, escrow.ErrNotFound), errors.Is(err, escrow.ErrAlreadyReleased):
			warning = err.Error()
		default:
			return UpdateResult{}, err
		}
	}

	o, err := s.repo.UpdateStatusTx(ctx, tx, snap.Order.ID, StatusCancelled, nil)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Order: o, EscrowWarning: warning}, nil
}

// Get fetches an order; only the parties and admins may read it.
func (s *Service) Get(ctx context.Context, actorID, orderID string) (Order, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return Order{}, err
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !permissions.CanViewOrder(*actor, o.PermissionInfo()) {
		return Order{}, ErrForbidden
	}
	return o, nil
}

// List returns order pages. Non-admin callers are pinned to orders they
// participate in.
func (s *Service) List(ctx context.Context, actorID string, filters Filters) ([]Order, int, error) {
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

func validateDestination(raw string) error {
	if raw == "" {
		return ErrInvalidDestination
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidDestination
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
