package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trafficlane/auth"
	"trafficlane/permissions"
	"trafficlane/seller"
)

var (
	// ErrForbidden signals the actor may not perform the catalog operation.
	ErrForbidden = errors.New("listing: forbidden")
	// ErrProfileRequired signals no seller profile exists to own the listing.
	ErrProfileRequired = errors.New("listing: seller profile required")
	// ErrInvalidInput marks malformed listing data.
	ErrInvalidInput = errors.New("listing: invalid input")
)

// UserDirectory is the read access to accounts the service needs.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// ProfileDirectory resolves seller profiles for ownership checks.
type ProfileDirectory interface {
	GetByUserID(ctx context.Context, userID string) (seller.Profile, error)
	GetByID(ctx context.Context, id string) (seller.Profile, error)
}

// Service exposes listing catalog operations.
type Service struct {
	repo     Repository
	users    UserDirectory
	profiles ProfileDirectory
}

func NewService(repo Repository, users UserDirectory, profiles ProfileDirectory) *Service {
	return &Service{repo: repo, users: users, profiles: profiles}
}

// CreateParams contains the attributes supplied by the seller.
type CreateParams struct {
	Title       string
	Description *string
	TrafficType string
	Lane        string
	Price       float64
	MinOrder    int
	MaxDaily    int
}

// Create publishes a listing under the caller's seller profile. The
// profile's allowed lanes and traffic types bound what may be listed.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (Listing, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Listing{}, err
	}

	profile, err := s.profiles.GetByUserID(ctx, userID)
	hasProfile := err == nil
	if err != nil && !errors.Is(err, seller.ErrNotFound) {
		return Listing{}, err
	}

	if !permissions.CanCreateListing(*user, hasProfile) {
		return Listing{}, ErrForbidden
	}
	if !hasProfile {
		return Listing{}, ErrProfileRequired
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Listing{}, fmt.Errorf("title required: %w", ErrInvalidInput)
	}
	if !profile.HasTrafficType(params.TrafficType) {
		return Listing{}, fmt.Errorf("traffic type %q not offered by profile: %w", params.TrafficType, ErrInvalidInput)
	}
	if !profile.HasLane(params.Lane) {
		return Listing{}, ErrForbidden
	}
	if !permissions.CanAccessLane(*user, auth.Lane(params.Lane)) {
		return Listing{}, ErrForbidden
	}
	if params.Price <= 0 {
		return Listing{}, fmt.Errorf("price must be positive: %w", ErrInvalidInput)
	}
	if params.MinOrder < 1 {
		return Listing{}, fmt.Errorf("min order must be at least 1: %w", ErrInvalidInput)
	}
	if params.MinOrder > params.MaxDaily {
		return Listing{}, fmt.Errorf("min order exceeds max daily: %w", ErrInvalidInput)
	}

	return s.repo.Create(ctx, Listing{
		SellerID:    profile.ID,
		Title:       title,
		Description: params.Description,
		TrafficType: params.TrafficType,
		Lane:        params.Lane,
		Price:       params.Price,
		MinOrder:    params.MinOrder,
		MaxDaily:    params.MaxDaily,
		IsActive:    true,
	})
}

// Get fetches a listing; PRIVATE-lane listings stay hidden from accounts
// without private access.
func (s *Service) Get(ctx context.Context, userID, listingID string) (Listing, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Listing{}, err
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if !permissions.CanAccessLane(*user, auth.Lane(l.Lane)) {
		return Listing{}, ErrForbidden
	}
	return l, nil
}

// List returns catalog pages. Accounts without private lane access are
// pinned to the CLEAN lane regardless of the requested filter.
func (s *Service) List(ctx context.Context, userID string, filters Filters) ([]Listing, int, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	if !permissions.CanAccessLane(*user, auth.LanePrivate) {
		if filters.Lane == string(auth.LanePrivate) {
			return nil, 0, ErrForbidden
		}
		filters.Lane = string(auth.LaneClean)
	}

	return s.repo.List(ctx, filters)
}

// Update mutates a listing; only the owning seller or an admin may do so.
func (s *Service) Update(ctx context.Context, userID, listingID string, params UpdateParams) (Listing, error) {
	current, err := s.authorizeEdit(ctx, userID, listingID)
	if err != nil {
		return Listing{}, err
	}

	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		return Listing{}, fmt.Errorf("title required: %w", ErrInvalidInput)
	}
	if params.Price != nil && *params.Price <= 0 {
		return Listing{}, fmt.Errorf("price must be positive: %w", ErrInvalidInput)
	}

	minOrder := current.MinOrder
	if params.MinOrder != nil {
		minOrder = *params.MinOrder
	}
	maxDaily := current.MaxDaily
	if params.MaxDaily != nil {
		maxDaily = *params.MaxDaily
	}
	if minOrder < 1 {
		return Listing{}, fmt.Errorf("min order must be at least 1: %w", ErrInvalidInput)
	}
	if minOrder > maxDaily {
		return Listing{}, fmt.Errorf("min order exceeds max daily: %w", ErrInvalidInput)
	}

	return s.repo.Update(ctx, listingID, params)
}

// Delete removes a listing unless live orders still reference it.
func (s *Service) Delete(ctx context.Context, userID, listingID string) error {
	if _, err := s.authorizeEdit(ctx, userID, listingID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, listingID)
}

func (s *Service) authorizeEdit(ctx context.Context, userID, listingID string) (Listing, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Listing{}, err
	}

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return Listing{}, err
	}

	owner, err := s.profiles.GetByID(ctx, l.SellerID)
	if err != nil {
		return Listing{}, err
	}

	if !permissions.CanEditListing(*user, owner.UserID) {
		return Listing{}, ErrForbidden
	}
	return l, nil
}
