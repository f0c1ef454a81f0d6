// Package admin holds the moderation actions only administrators may
// take: seller approval, banning, and private lane grants.
package admin

import (
	"context"
	"errors"

	"trafficlane/auth"
	"trafficlane/permissions"
)

var (
	// ErrForbidden signals the actor is not an administrator.
	ErrForbidden = errors.New("admin: forbidden")
	// ErrNotSeller signals approval targets must hold a selling role.
	ErrNotSeller = errors.New("admin: user has no selling role")
	// ErrTargetAdmin signals moderation never applies to administrators.
	ErrTargetAdmin = errors.New("admin: cannot moderate an administrator")
	// ErrInvalidLane signals an unknown lane grant.
	ErrInvalidLane = errors.New("admin: invalid lane")
)

// UserDirectory is the read access to accounts the service needs.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
}

// Service exposes the moderation operations.
type Service struct {
	repo  Repository
	users UserDirectory
}

func NewService(repo Repository, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

// ApproveSeller marks a selling account as approved to trade.
func (s *Service) ApproveSeller(ctx context.Context, adminID, userID string) (auth.User, error) {
	admin, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return auth.User{}, err
	}
	if !permissions.CanApproveSeller(*admin) {
		return auth.User{}, ErrForbidden
	}

	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return auth.User{}, err
	}
	if target.Role != auth.RoleSeller && target.Role != auth.RoleBoth {
		return auth.User{}, ErrNotSeller
	}

	return s.repo.SetApproved(ctx, userID, true)
}

// BanUser blocks an account from every marketplace operation.
func (s *Service) BanUser(ctx context.Context, adminID, userID string) (auth.User, error) {
	return s.setBanned(ctx, adminID, userID, true)
}

// UnbanUser lifts a ban.
func (s *Service) UnbanUser(ctx context.Context, adminID, userID string) (auth.User, error) {
	return s.setBanned(ctx, adminID, userID, false)
}

func (s *Service) setBanned(ctx context.Context, adminID, userID string, banned bool) (auth.User, error) {
	admin, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return auth.User{}, err
	}
	if !permissions.CanModerateUsers(*admin) {
		return auth.User{}, ErrForbidden
	}

	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return auth.User{}, err
	}
	if target.Role == auth.RoleAdmin {
		return auth.User{}, ErrTargetAdmin
	}

	return s.repo.SetBanned(ctx, userID, banned)
}

// GrantLaneAccess sets the lane an account may trade in.
func (s *Service) GrantLaneAccess(ctx context.Context, adminID, userID string, lane auth.Lane) (auth.User, error) {
	admin, err := s.users.GetUserByID(ctx, adminID)
	if err != nil {
		return auth.User{}, err
	}
	if !permissions.CanModerateUsers(*admin) {
		return auth.User{}, ErrForbidden
	}
	if lane != auth.LaneClean && lane != auth.LanePrivate {
		return auth.User{}, ErrInvalidLane
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return auth.User{}, err
	}

	return s.repo.SetLaneAccess(ctx, userID, lane)
}
