package seller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trafficlane/auth"
)

var (
	// ErrForbidden signals the actor may not perform the profile operation.
	ErrForbidden = errors.New("seller: forbidden")
	// ErrComplianceRequired signals the compliance agreement was not accepted.
	ErrComplianceRequired = errors.New("seller: compliance agreement required")
	// ErrInvalidInput marks malformed profile data.
	ErrInvalidInput = errors.New("seller: invalid input")
)

// UserDirectory is the read access to accounts the service needs.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// Service exposes seller profile operations.
type Service struct {
	repo  Repository
	users UserDirectory
}

// NewService builds a Service using the provided repository and user directory.
func NewService(repo Repository, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

// CreateParams contains the profile attributes supplied by the seller.
type CreateParams struct {
	DisplayName      string
	Bio              *string
	TrafficTypes     []string
	AllowedLanes     []string
	ComplianceAgreed bool
}

// Create registers the seller profile for userID. Only accounts holding a
// selling role may create one, and the compliance agreement is mandatory.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (Profile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if user.IsBanned {
		return Profile{}, ErrForbidden
	}
	if user.Role != auth.RoleSeller && user.Role != auth.RoleBoth {
		return Profile{}, ErrForbidden
	}
	if !params.ComplianceAgreed {
		return Profile{}, ErrComplianceRequired
	}

	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return Profile{}, fmt.Errorf("display name required: %w", ErrInvalidInput)
	}
	if len(params.TrafficTypes) == 0 {
		return Profile{}, fmt.Errorf("at least one traffic type required: %w", ErrInvalidInput)
	}
	for _, tt := range params.TrafficTypes {
		if !isValidTrafficType(tt) {
			return Profile{}, fmt.Errorf("invalid traffic type %q: %w", tt, ErrInvalidInput)
		}
	}
	lanes := params.AllowedLanes
	if len(lanes) == 0 {
		lanes = []string{string(auth.LaneClean)}
	}
	for _, lane := range lanes {
		if lane != string(auth.LaneClean) && lane != string(auth.LanePrivate) {
			return Profile{}, fmt.Errorf("invalid lane %q: %w", lane, ErrInvalidInput)
		}
		// Selling in the private lane requires the account to hold private access.
		if lane == string(auth.LanePrivate) && user.LaneAccess != auth.LanePrivate {
			return Profile{}, ErrForbidden
		}
	}

	return s.repo.Create(ctx, Profile{
		UserID:           userID,
		DisplayName:      displayName,
		Bio:              params.Bio,
		TrafficTypes:     params.TrafficTypes,
		AllowedLanes:     lanes,
		ComplianceAgreed: params.ComplianceAgreed,
	})
}

// GetByUserID returns the profile owned by the user.
func (s *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// GetByID returns a profile by its identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit seller profiles.
func (s *Service) List(ctx context.Context, limit int) ([]Profile, error) {
	return s.repo.List(ctx, limit)
}

func isValidTrafficType(tt string) bool {
	switch TrafficType(tt) {
	case TrafficEmail, TrafficSocial, TrafficNative, TrafficDisplay, TrafficPush, TrafficMixed:
		return true
	default:
		return false
	}
}
