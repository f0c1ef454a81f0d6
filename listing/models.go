package listing

import "time"

// Listing is a sellable traffic offer. Price is quoted per 1000 visitors;
// Lane is fixed at creation and every order copies it as a snapshot.
type Listing struct {
	ID          string
	SellerID    string
	Title       string
	Description *string
	TrafficType string
	Lane        string
	Price       float64
	MinOrder    int
	MaxDaily    int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filters narrows List results. Zero values mean "no filter".
type Filters struct {
	SellerID    string
	Lane        string
	TrafficType string
	ActiveOnly  bool
	Page        int
	PageSize    int
}
