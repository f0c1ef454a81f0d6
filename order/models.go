package order

import (
	"time"

	"trafficlane/permissions"
)

// Status enumerates the order lifecycle states.
//
//	PENDING → ACTIVE → {COMPLETED | DISPUTED → (ACTIVE | COMPLETED | CANCELLED)}
//	PENDING → CANCELLED
//
// COMPLETED and CANCELLED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusDisputed  Status = "DISPUTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Order is the central transactional entity. Lane is copied from the
// listing at creation and never changes afterwards; the listing itself
// may be edited but the order keeps its snapshot.
type Order struct {
	ID             string
	BuyerID        string
	SellerID       string
	ListingID      string
	Lane           string
	Quantity       int
	DestinationURL string
	TrackingURL    *string
	TotalPrice     float64
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PermissionInfo converts the order into the snapshot the permission
// predicates operate on.
func (o Order) PermissionInfo() permissions.OrderInfo {
	return permissions.OrderInfo{
		BuyerID:  o.BuyerID,
		SellerID: o.SellerID,
		Status:   string(o.Status),
	}
}

// Snapshot is an order plus the escrow/dispute facts read under the same
// row lock, so transition preconditions are checked against a consistent
// view.
type Snapshot struct {
	Order          Order
	HasEscrow      bool
	EscrowReleased bool
	DisputeOpen    bool
}

// Filters narrows List results. Zero values mean "no filter".
type Filters struct {
	ParticipantID string
	BuyerID       string
	SellerID      string
	Status        Status
	Page          int
	PageSize      int
}
