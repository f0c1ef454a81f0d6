package seller

import (
	"context"
	"errors"
	"testing"

	"trafficlane/auth"
)

type fakeUsers struct {
	users map[string]*auth.User
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

type fakeRepository struct {
	profiles map[string]Profile
}

func (f *fakeRepository) Create(ctx context.Context, p Profile) (Profile, error) {
	if _, ok := f.profiles[p.UserID]; ok {
		return Profile{}, ErrAlreadyExists
	}
	p.ID = "profile-" + p.UserID
	f.profiles[p.UserID] = p
	return p, nil
}

func (f *fakeRepository) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id string) (Profile, error) {
	for _, p := range f.profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (f *fakeRepository) List(ctx context.Context, limit int) ([]Profile, error) {
	out := make([]Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func newFixture() (*Service, *fakeRepository) {
	users := &fakeUsers{users: map[string]*auth.User{
		"seller-1": {ID: "seller-1", Role: auth.RoleSeller, LaneAccess: auth.LaneClean},
		"seller-2": {ID: "seller-2", Role: auth.RoleBoth, LaneAccess: auth.LanePrivate},
		"buyer-1":  {ID: "buyer-1", Role: auth.RoleBuyer, LaneAccess: auth.LaneClean},
	}}
	repo := &fakeRepository{profiles: map[string]Profile{}}
	return NewService(repo, users), repo
}

func validParams() CreateParams {
	return CreateParams{
		DisplayName:      "Clean Clicks Co",
		TrafficTypes:     []string{"EMAIL", "SOCIAL"},
		ComplianceAgreed: true,
	}
}

func TestCreateProfile(t *testing.T) {
	svc, _ := newFixture()

	p, err := svc.Create(context.Background(), "seller-1", validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(p.AllowedLanes) != 1 || p.AllowedLanes[0] != "CLEAN" {
		t.Fatalf("lanes default = %v, want [CLEAN]", p.AllowedLanes)
	}
}

func TestCreateProfileRequiresCompliance(t *testing.T) {
	svc, _ := newFixture()

	params := validParams()
	params.ComplianceAgreed = false
	if _, err := svc.Create(context.Background(), "seller-1", params); !errors.Is(err, ErrComplianceRequired) {
		t.Fatalf("expected ErrComplianceRequired, got %v", err)
	}
}

func TestCreateProfileSellingRoleOnly(t *testing.T) {
	svc, _ := newFixture()

	if _, err := svc.Create(context.Background(), "buyer-1", validParams()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateProfilePrivateLaneNeedsAccess(t *testing.T) {
	svc, _ := newFixture()

	params := validParams()
	params.AllowedLanes = []string{"CLEAN", "PRIVATE"}
	if _, err := svc.Create(context.Background(), "seller-1", params); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for private lane without access, got %v", err)
	}

	if _, err := svc.Create(context.Background(), "seller-2", params); err != nil {
		t.Fatalf("private-access seller create: %v", err)
	}
}

func TestCreateProfileOncePerUser(t *testing.T) {
	svc, _ := newFixture()

	if _, err := svc.Create(context.Background(), "seller-1", validParams()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(context.Background(), "seller-1", validParams()); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateProfileValidation(t *testing.T) {
	svc, _ := newFixture()

	params := validParams()
	params.DisplayName = "  "
	if _, err := svc.Create(context.Background(), "seller-1", params); err == nil {
		t.Fatal("expected display name validation error")
	}

	params = validParams()
	params.TrafficTypes = nil
	if _, err := svc.Create(context.Background(), "seller-1", params); err == nil {
		t.Fatal("expected traffic type validation error")
	}

	params = validParams()
	params.TrafficTypes = []string{"CARRIER_PIGEON"}
	if _, err := svc.Create(context.Background(), "seller-1", params); err == nil {
		t.Fatal("expected invalid traffic type error")
	}
}
