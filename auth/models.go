package auth

import "time"

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
	RoleBoth   Role = "BOTH"
	RoleAdmin  Role = "ADMIN"
)

// Lane is the traffic category a listing or order belongs to. CLEAN is
// visible to everyone; PRIVATE requires explicit lane access on the user.
type Lane string

const (
	LaneClean   Lane = "CLEAN"
	LanePrivate Lane = "PRIVATE"
)

// User is the domain representation of a marketplace account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	LaneAccess   Lane
	IsApproved   bool
	IsBanned     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
