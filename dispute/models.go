package dispute

import "time"

// Status enumerates the dispute lifecycle. OPEN transitions exactly once
// to RESOLVED or REJECTED; both are terminal.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
	StatusRejected Status = "REJECTED"
)

// Decision is the admin's ruling on an open dispute.
type Decision string

const (
	DecisionResolved Decision = "RESOLVED"
	DecisionRejected Decision = "REJECTED"
)

// Dispute contests an active order. At most one per order, enforced by a
// unique constraint on order_id.
type Dispute struct {
	ID         string
	OrderID    string
	OpenedBy   string
	Reason     string
	Status     Status
	Resolution *string
	ResolvedBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filters narrows List results. Zero values mean "no filter".
type Filters struct {
	ParticipantID string
	Status        Status
	Page          int
	PageSize      int
}
