package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trafficlane/admin"
	"trafficlane/auth"
	"trafficlane/dispute"
	"trafficlane/escrow"
	"trafficlane/listing"
	"trafficlane/order"
	"trafficlane/seller"
)

type stubAuthService struct {
	user       auth.User
	userErr    error
	login      auth.LoginResult
	loginErr   error
	verifyID   string
	verifyRole auth.Role
	verifyErr  error
}

func (s *stubAuthService) Register(_ context.Context, _ auth.RegisterRequest) (*auth.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return &s.user, nil
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (auth.LoginResult, error) {
	return s.login, s.loginErr
}

func (s *stubAuthService) GetUserByID(_ context.Context, _ string) (*auth.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return &s.user, nil
}

func (s *stubAuthService) VerifyToken(_ string) (string, auth.Role, error) {
	return s.verifyID, s.verifyRole, s.verifyErr
}

type stubListingService struct {
	listing   listing.Listing
	items     []listing.Listing
	total     int
	err       error
	deleteErr error
}

func (s *stubListingService) Create(_ context.Context, _ string, _ listing.CreateParams) (listing.Listing, error) {
	return s.listing, s.err
}

func (s *stubListingService) Get(_ context.Context, _, _ string) (listing.Listing, error) {
	return s.listing, s.err
}

func (s *stubListingService) List(_ context.Context, _ string, _ listing.Filters) ([]listing.Listing, int, error) {
	return s.items, s.total, s.err
}

func (s *stubListingService) Update(_ context.Context, _, _ string, _ listing.UpdateParams) (listing.Listing, error) {
	return s.listing, s.err
}

func (s *stubListingService) Delete(_ context.Context, _, _ string) error {
	return s.deleteErr
}

type stubOrderService struct {
	order     order.Order
	update    order.UpdateResult
	items     []order.Order
	total     int
	createErr error
	updateErr error
	getErr    error
	listErr   error
}

func (s *stubOrderService) Create(_ context.Context, _ string, _ order.CreateParams) (order.Order, error) {
	return s.order, s.createErr
}

func (s *stubOrderService) Update(_ context.Context, _, _ string, _ order.UpdateParams) (order.UpdateResult, error) {
	return s.update, s.updateErr
}

func (s *stubOrderService) Get(_ context.Context, _, _ string) (order.Order, error) {
	return s.order, s.getErr
}

func (s *stubOrderService) List(_ context.Context, _ string, _ order.Filters) ([]order.Order, int, error) {
	return s.items, s.total, s.listErr
}

type stubDisputeService struct {
	dispute    dispute.Dispute
	resolution dispute.Resolution
	items      []dispute.Dispute
	total      int
	openErr    error
	resolveErr error
	getErr     error
	listErr    error
}

func (s *stubDisputeService) Open(_ context.Context, _, _, _ string) (dispute.Dispute, error) {
	return s.dispute, s.openErr
}

func (s *stubDisputeService) Resolve(_ context.Context, _, _ string, _ dispute.ResolveParams) (dispute.Resolution, error) {
	return s.resolution, s.resolveErr
}

func (s *stubDisputeService) Get(_ context.Context, _, _ string) (dispute.Dispute, error) {
	return s.dispute, s.getErr
}

func (s *stubDisputeService) List(_ context.Context, _ string, _ dispute.Filters) ([]dispute.Dispute, int, error) {
	return s.items, s.total, s.listErr
}

type stubSellerService struct {
	profile  seller.Profile
	profiles []seller.Profile
	err      error
}

func (s *stubSellerService) Create(_ context.Context, _ string, _ seller.CreateParams) (seller.Profile, error) {
	return s.profile, s.err
}

func (s *stubSellerService) GetByUserID(_ context.Context, _ string) (seller.Profile, error) {
	return s.profile, s.err
}

func (s *stubSellerService) GetByID(_ context.Context, _ string) (seller.Profile, error) {
	return s.profile, s.err
}

func (s *stubSellerService) List(_ context.Context, _ int) ([]seller.Profile, error) {
	return s.profiles, s.err
}

type stubAdminService struct {
	user auth.User
	err  error
}

func (s *stubAdminService) ApproveSeller(_ context.Context, _, _ string) (auth.User, error) {
	return s.user, s.err
}

func (s *stubAdminService) BanUser(_ context.Context, _, _ string) (auth.User, error) {
	return s.user, s.err
}

func (s *stubAdminService) UnbanUser(_ context.Context, _, _ string) (auth.User, error) {
	return s.user, s.err
}

func (s *stubAdminService) GrantLaneAccess(_ context.Context, _, _ string, _ auth.Lane) (auth.User, error) {
	return s.user, s.err
}

type stubEscrowService struct {
	escrow escrow.Escrow
	err    error
}

func (s *stubEscrowService) GetByOrder(_ context.Context, _ string) (escrow.Escrow, error) {
	return s.escrow, s.err
}

func asUser(r *http.Request, userID string, role auth.Role) *http.Request {
	ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return r.WithContext(ctx)
}

func TestHandleRegister_Success(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	server := &Server{
		authService: &stubAuthService{
			user: auth.User{ID: "u1", Email: "buyer@example.com", Role: auth.RoleBuyer, LaneAccess: auth.LaneClean, CreatedAt: now},
		},
	}

	body := strings.NewReader(`{"email":"buyer@example.com","password":"hunter2hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "u1" || resp.Email != "buyer@example.com" || resp.Role != "BUYER" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.CreatedAt != now.Format(time.RFC3339) {
		t.Fatalf("expected createdAt %s, got %s", now.Format(time.RFC3339), resp.CreatedAt)
	}
}

func TestHandleRegister_WeakPassword(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{userErr: auth.ErrWeakPassword},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@b.c","password":"short"}`))
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{userErr: auth.ErrDuplicateEmail},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@b.c","password":"hunter2hunter2"}`))
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleLogin_BannedAccount(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{loginErr: auth.ErrBanned},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"hunter2hunter2"}`))
	rec := httptest.NewRecorder()

	server.handleLogin(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	server := &Server{authService: &stubAuthService{}}
	handler := server.auth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_PropagatesIdentity(t *testing.T) {
	server := &Server{
		authService: &stubAuthService{verifyID: "u1", verifyRole: auth.RoleBuyer},
	}
	handler := server.auth(func(w http.ResponseWriter, r *http.Request) {
		if userIDFrom(r) != "u1" {
			t.Fatalf("expected user id u1, got %q", userIDFrom(r))
		}
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHandleCreateListing_ProfileRequired(t *testing.T) {
	server := &Server{
		listingService: &stubListingService{err: listing.ErrProfileRequired},
	}

	body := strings.NewReader(`{"title":"Email drops","trafficType":"EMAIL","lane":"CLEAN","price":2,"minOrder":1000,"maxDaily":5000}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/listings", body), "u1", auth.RoleSeller)
	rec := httptest.NewRecorder()

	server.handleCreateListing(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleListListings_Success(t *testing.T) {
	now := time.Now().UTC()
	server := &Server{
		listingService: &stubListingService{
			items: []listing.Listing{{ID: "l1", SellerID: "p1", Title: "Email drops", TrafficType: "EMAIL", Lane: "CLEAN", Price: 2, MinOrder: 1000, MaxDaily: 5000, IsActive: true, CreatedAt: now}},
			total: 1,
		},
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/listings?lane=CLEAN", nil), "u1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleListListings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []listingResponse `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Total != 1 || payload.Items[0].ID != "l1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleDeleteListing_LiveOrders(t *testing.T) {
	server := &Server{
		listingService: &stubListingService{deleteErr: listing.ErrLiveOrders},
	}

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/listings/l1", nil), "u1", auth.RoleSeller)
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()

	server.handleDeleteListing(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleCreateOrder_Success(t *testing.T) {
	now := time.Now().UTC()
	server := &Server{
		orderService: &stubOrderService{
			order: order.Order{
				ID:             "o1",
				BuyerID:        "u1",
				SellerID:       "u2",
				ListingID:      "l1",
				Lane:           "CLEAN",
				Quantity:       5000,
				DestinationURL: "https://example.com/landing",
				TotalPrice:     10,
				Status:         order.StatusActive,
				CreatedAt:      now,
			},
		},
	}

	body := strings.NewReader(`{"listingId":"l1","quantity":5000,"destinationUrl":"https://example.com/landing"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/orders", body), "u1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleCreateOrder(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "o1" || resp.Status != "ACTIVE" || resp.TotalPrice != 10 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleCreateOrder_QuantityOutOfRange(t *testing.T) {
	server := &Server{
		orderService: &stubOrderService{createErr: order.ErrQuantityOutOfRange},
	}

	body := strings.NewReader(`{"listingId":"l1","quantity":1,"destinationUrl":"https://example.com"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/orders", body), "u1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleCreateOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleUpdateOrder_EscrowWarning(t *testing.T) {
	server := &Server{
		orderService: &stubOrderService{
			update: order.UpdateResult{
				Order:         order.Order{ID: "o1", Status: order.StatusCompleted},
				EscrowWarning: "escrow already released",
			},
		},
	}

	body := strings.NewReader(`{"status":"COMPLETED"}`)
	req := asUser(httptest.NewRequest(http.MethodPatch, "/api/orders/o1", body), "u1", auth.RoleBuyer)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	server.handleUpdateOrder(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "COMPLETED" || resp.EscrowWarning != "escrow already released" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleUpdateOrder_DisputeOpen(t *testing.T) {
	server := &Server{
		orderService: &stubOrderService{updateErr: order.ErrDisputeOpen},
	}

	req := asUser(httptest.NewRequest(http.MethodPatch, "/api/orders/o1", strings.NewReader(`{"status":"COMPLETED"}`)), "u1", auth.RoleBuyer)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	server.handleUpdateOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleOrder_NotFound(t *testing.T) {
	server := &Server{
		orderService: &stubOrderService{getErr: order.ErrNotFound},
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil), "u1", auth.RoleBuyer)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	server.handleOrder(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleOrderEscrow_Success(t *testing.T) {
	server := &Server{
		orderService:  &stubOrderService{order: order.Order{ID: "o1", BuyerID: "u1"}},
		escrowService: &stubEscrowService{escrow: escrow.Escrow{ID: "e1", OrderID: "o1", Amount: 10, Currency: "USD"}},
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/orders/o1/escrow", nil), "u1", auth.RoleBuyer)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	server.handleOrderEscrow(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp escrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "o1" || resp.Amount != 10 || resp.Released {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.PlatformFee != 0.5 || resp.SellerPayout != 9.5 {
		t.Fatalf("unexpected fee split: %+v", resp)
	}
}

func TestHandleOrderEscrow_HiddenFromStrangers(t *testing.T) {
	server := &Server{
		orderService:  &stubOrderService{getErr: order.ErrForbidden},
		escrowService: &stubEscrowService{},
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/orders/o1/escrow", nil), "stranger", auth.RoleBuyer)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	server.handleOrderEscrow(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleCreateDispute_Conflict(t *testing.T) {
	server := &Server{
		disputeService: &stubDisputeService{openErr: dispute.ErrAlreadyExists},
	}

	body := strings.NewReader(`{"orderId":"o1","reason":"traffic never arrived at the destination"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/disputes", body), "u1", auth.RoleBuyer)
	rec := httptest.NewRecorder()

	server.handleCreateDispute(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleResolveDispute_Success(t *testing.T) {
	server := &Server{
		disputeService: &stubDisputeService{
			resolution: dispute.Resolution{
				Dispute: dispute.Dispute{ID: "d1", OrderID: "o1", Status: dispute.StatusResolved},
				Order:   order.Order{ID: "o1", Status: order.StatusCancelled},
			},
		},
	}

	body := strings.NewReader(`{"decision":"RESOLVED","resolution":"refunded the buyer","refundBuyer":true}`)
	req := asUser(httptest.NewRequest(http.MethodPatch, "/api/disputes/d1", body), "admin-1", auth.RoleAdmin)
	req.SetPathValue("id", "d1")
	rec := httptest.NewRecorder()

	server.handleResolveDispute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Dispute disputeResponse `json:"dispute"`
		Order   orderResponse   `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Dispute.Status != "RESOLVED" || payload.Order.Status != "CANCELLED" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleResolveDispute_NotAdmin(t *testing.T) {
	server := &Server{
		disputeService: &stubDisputeService{resolveErr: dispute.ErrForbidden},
	}

	req := asUser(httptest.NewRequest(http.MethodPatch, "/api/disputes/d1", strings.NewReader(`{"decision":"REJECTED"}`)), "u1", auth.RoleBuyer)
	req.SetPathValue("id", "d1")
	rec := httptest.NewRecorder()

	server.handleResolveDispute(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleApproveSeller_Success(t *testing.T) {
	server := &Server{
		adminService: &stubAdminService{
			user: auth.User{ID: "u2", Email: "seller@example.com", Role: auth.RoleSeller, IsApproved: true},
		},
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/admin/users/u2/approve", nil), "admin-1", auth.RoleAdmin)
	req.SetPathValue("id", "u2")
	rec := httptest.NewRecorder()

	server.handleApproveSeller(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsApproved {
		t.Fatalf("expected approved user, got %+v", resp)
	}
}

func TestHandleBanUser_TargetAdmin(t *testing.T) {
	server := &Server{
		adminService: &stubAdminService{err: admin.ErrTargetAdmin},
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/admin/users/admin-2/ban", nil), "admin-1", auth.RoleAdmin)
	req.SetPathValue("id", "admin-2")
	rec := httptest.NewRecorder()

	server.handleBanUser(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleGrantLane_InvalidLane(t *testing.T) {
	server := &Server{
		adminService: &stubAdminService{err: admin.ErrInvalidLane},
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/admin/users/u1/lane", strings.NewReader(`{"lane":"GREY"}`)), "admin-1", auth.RoleAdmin)
	req.SetPathValue("id", "u1")
	rec := httptest.NewRecorder()

	server.handleGrantLane(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServiceError_UnexpectedIs500(t *testing.T) {
	server := &Server{
		orderService: &stubOrderService{getErr: errors.New("boom")},
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/orders/o1", nil), "u1", auth.RoleBuyer)
	req.SetPathValue("id", "o1")
	rec := httptest.NewRecorder()

	server.handleOrder(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}
