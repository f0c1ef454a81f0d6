package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"trafficlane/admin"
	"trafficlane/auth"
	"trafficlane/dispute"
	"trafficlane/escrow"
	"trafficlane/listing"
	"trafficlane/order"
	"trafficlane/seller"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type sellerService interface {
	Create(ctx context.Context, userID string, params seller.CreateParams) (seller.Profile, error)
	GetByUserID(ctx context.Context, userID string) (seller.Profile, error)
	GetByID(ctx context.Context, id string) (seller.Profile, error)
	List(ctx context.Context, limit int) ([]seller.Profile, error)
}

type listingService interface {
	Create(ctx context.Context, userID string, params listing.CreateParams) (listing.Listing, error)
	Get(ctx context.Context, userID, listingID string) (listing.Listing, error)
	List(ctx context.Context, userID string, filters listing.Filters) ([]listing.Listing, int, error)
	Update(ctx context.Context, userID, listingID string, params listing.UpdateParams) (listing.Listing, error)
	Delete(ctx context.Context, userID, listingID string) error
}

type orderService interface {
	Create(ctx context.Context, buyerID string, params order.CreateParams) (order.Order, error)
	Update(ctx context.Context, actorID, orderID string, params order.UpdateParams) (order.UpdateResult, error)
	Get(ctx context.Context, actorID, orderID string) (order.Order, error)
	List(ctx context.Context, actorID string, filters order.Filters) ([]order.Order, int, error)
}

type disputeService interface {
	Open(ctx context.Context, actorID, orderID, reason string) (dispute.Dispute, error)
	Resolve(ctx context.Context, adminID, disputeID string, params dispute.ResolveParams) (dispute.Resolution, error)
	Get(ctx context.Context, actorID, disputeID string) (dispute.Dispute, error)
	List(ctx context.Context, actorID string, filters dispute.Filters) ([]dispute.Dispute, int, error)
}

type adminService interface {
	ApproveSeller(ctx context.Context, adminID, userID string) (auth.User, error)
	BanUser(ctx context.Context, adminID, userID string) (auth.User, error)
	UnbanUser(ctx context.Context, adminID, userID string) (auth.User, error)
	GrantLaneAccess(ctx context.Context, adminID, userID string, lane auth.Lane) (auth.User, error)
}

type escrowService interface {
	GetByOrder(ctx context.Context, orderID string) (escrow.Escrow, error)
}

// Server is the request layer over the marketplace services. Handlers
// stay thin: decode, call, map errors to HTTP statuses.
type Server struct {
	authService    authService
	sellerService  sellerService
	listingService listingService
	orderService   orderService
	disputeService disputeService
	adminService   adminService
	escrowService  escrowService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/me", s.auth(s.handleMe))

	mux.Handle("POST /api/sellers", s.auth(s.handleCreateSeller))
	mux.Handle("GET /api/sellers", s.auth(s.handleListSellers))
	mux.Handle("GET /api/sellers/{id}", s.auth(s.handleSeller))

	mux.Handle("POST /api/listings", s.auth(s.handleCreateListing))
	mux.Handle("GET /api/listings", s.auth(s.handleListListings))
	mux.Handle("GET /api/listings/{id}", s.auth(s.handleListing))
	mux.Handle("PATCH /api/listings/{id}", s.auth(s.handleUpdateListing))
	mux.Handle("DELETE /api/listings/{id}", s.auth(s.handleDeleteListing))

	mux.Handle("POST /api/orders", s.auth(s.handleCreateOrder))
	mux.Handle("GET /api/orders", s.auth(s.handleListOrders))
	mux.Handle("GET /api/orders/{id}", s.auth(s.handleOrder))
	mux.Handle("PATCH /api/orders/{id}", s.auth(s.handleUpdateOrder))
	mux.Handle("GET /api/orders/{id}/escrow", s.auth(s.handleOrderEscrow))

	mux.Handle("POST /api/disputes", s.auth(s.handleCreateDispute))
	mux.Handle("GET /api/disputes", s.auth(s.handleListDisputes))
	mux.Handle("GET /api/disputes/{id}", s.auth(s.handleDispute))
	mux.Handle("PATCH /api/disputes/{id}", s.auth(s.handleResolveDispute))

	mux.Handle("POST /api/admin/users/{id}/approve", s.auth(s.handleApproveSeller))
	mux.Handle("POST /api/admin/users/{id}/ban", s.auth(s.handleBanUser))
	mux.Handle("POST /api/admin/users/{id}/unban", s.auth(s.handleUnbanUser))
	mux.Handle("POST /api/admin/users/{id}/lane", s.auth(s.handleGrantLane))

	return mux
}

// auth extracts and verifies the bearer token, stashing the user id and
// role in the request context.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serviceError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is an internal error and the detail stays out of the
// response.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrBanned),
		errors.Is(err, seller.ErrForbidden),
		errors.Is(err, listing.ErrForbidden),
		errors.Is(err, listing.ErrProfileRequired),
		errors.Is(err, order.ErrForbidden),
		errors.Is(err, dispute.ErrForbidden),
		errors.Is(err, admin.ErrForbidden),
		errors.Is(err, admin.ErrTargetAdmin):
		return http.StatusForbidden

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, seller.ErrNotFound),
		errors.Is(err, listing.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, escrow.ErrOrderNotFound):
		return http.StatusNotFound

	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, seller.ErrAlreadyExists),
		errors.Is(err, listing.ErrLiveOrders),
		errors.Is(err, escrow.ErrAlreadyExists),
		errors.Is(err, escrow.ErrAlreadyReleased),
		errors.Is(err, dispute.ErrAlreadyExists),
		errors.Is(err, dispute.ErrAlreadyResolved):
		return http.StatusConflict

	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, seller.ErrComplianceRequired),
		errors.Is(err, seller.ErrInvalidInput),
		errors.Is(err, listing.ErrInvalidInput),
		errors.Is(err, order.ErrListingInactive),
		errors.Is(err, order.ErrQuantityOutOfRange),
		errors.Is(err, order.ErrSelfPurchase),
		errors.Is(err, order.ErrSellerUnavailable),
		errors.Is(err, order.ErrInvalidDestination),
		errors.Is(err, order.ErrTerminalState),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrDisputeOpen),
		errors.Is(err, order.ErrTrackingRequired),
		errors.Is(err, escrow.ErrDisputeOpen),
		errors.Is(err, dispute.ErrOrderNotActive),
		errors.Is(err, dispute.ErrEscrowUnavailable),
		errors.Is(err, dispute.ErrInvalidReason),
		errors.Is(err, dispute.ErrInvalidDecision),
		errors.Is(err, admin.ErrNotSeller),
		errors.Is(err, admin.ErrInvalidLane):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
