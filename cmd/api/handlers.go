package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"trafficlane/auth"
	"trafficlane/dispute"
	"trafficlane/escrow"
	"trafficlane/listing"
	"trafficlane/order"
	"trafficlane/seller"
)

type userResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	LaneAccess string `json:"laneAccess"`
	IsApproved bool   `json:"isApproved"`
	IsBanned   bool   `json:"isBanned"`
	CreatedAt  string `json:"createdAt"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Role:       string(u.Role),
		LaneAccess: string(u.LaneAccess),
		IsApproved: u.IsApproved,
		IsBanned:   u.IsBanned,
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

type sellerResponse struct {
	ID               string   `json:"id"`
	UserID           string   `json:"userId"`
	DisplayName      string   `json:"displayName"`
	Bio              *string  `json:"bio,omitempty"`
	TrafficTypes     []string `json:"trafficTypes"`
	AllowedLanes     []string `json:"allowedLanes"`
	ReputationClean  float64  `json:"reputationClean"`
	ReputationPriv   float64  `json:"reputationPrivate"`
	CreatedAt        string   `json:"createdAt"`
}

func toSellerResponse(p seller.Profile) sellerResponse {
	return sellerResponse{
		ID:              p.ID,
		UserID:          p.UserID,
		DisplayName:     p.DisplayName,
		Bio:             p.Bio,
		TrafficTypes:    p.TrafficTypes,
		AllowedLanes:    p.AllowedLanes,
		ReputationClean: p.ReputationClean,
		ReputationPriv:  p.ReputationPrivate,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

type listingResponse struct {
	ID          string  `json:"id"`
	SellerID    string  `json:"sellerId"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	TrafficType string  `json:"trafficType"`
	Lane        string  `json:"lane"`
	Price       float64 `json:"price"`
	MinOrder    int     `json:"minOrder"`
	MaxDaily    int     `json:"maxDaily"`
	IsActive    bool    `json:"isActive"`
	CreatedAt   string  `json:"createdAt"`
}

func toListingResponse(l listing.Listing) listingResponse {
	return listingResponse{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Description: l.Description,
		TrafficType: l.TrafficType,
		Lane:        l.Lane,
		Price:       l.Price,
		MinOrder:    l.MinOrder,
		MaxDaily:    l.MaxDaily,
		IsActive:    l.IsActive,
		CreatedAt:   l.CreatedAt.Format(time.RFC3339),
	}
}

type orderResponse struct {
	ID             string  `json:"id"`
	BuyerID        string  `json:"buyerId"`
	SellerID       string  `json:"sellerId"`
	ListingID      string  `json:"listingId"`
	Lane           string  `json:"lane"`
	Quantity       int     `json:"quantity"`
	DestinationURL string  `json:"destinationUrl"`
	TrackingURL    *string `json:"trackingUrl,omitempty"`
	TotalPrice     float64 `json:"totalPrice"`
	Status         string  `json:"status"`
	EscrowWarning  string  `json:"escrowWarning,omitempty"`
	CreatedAt      string  `json:"createdAt"`
}

func toOrderResponse(o order.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		SellerID:       o.SellerID,
		ListingID:      o.ListingID,
		Lane:           o.Lane,
		Quantity:       o.Quantity,
		DestinationURL: o.DestinationURL,
		TrackingURL:    o.TrackingURL,
		TotalPrice:     o.TotalPrice,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
}

type disputeResponse struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"orderId"`
	OpenedBy   string  `json:"openedBy"`
	Reason     string  `json:"reason"`
	Status     string  `json:"status"`
	Resolution *string `json:"resolution,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

func toDisputeResponse(d dispute.Dispute) disputeResponse {
	return disputeResponse{
		ID:         d.ID,
		OrderID:    d.OrderID,
		OpenedBy:   d.OpenedBy,
		Reason:     d.Reason,
		Status:     string(d.Status),
		Resolution: d.Resolution,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

type escrowResponse struct {
	ID           string  `json:"id"`
	OrderID      string  `json:"orderId"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Released     bool    `json:"released"`
	PlatformFee  float64 `json:"platformFee"`
	SellerPayout float64 `json:"sellerPayout"`
}

func toEscrowResponse(e escrow.Escrow) escrowResponse {
	return escrowResponse{
		ID:           e.ID,
		OrderID:      e.OrderID,
		Amount:       e.Amount,
		Currency:     e.Currency,
		Released:     e.Released,
		PlatformFee:  escrow.PlatformFee(e.Amount, escrow.DefaultFeePercent),
		SellerPayout: escrow.SellerPayout(e.Amount, escrow.DefaultFeePercent),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user":  toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.authService.GetUserByID(r.Context(), userIDFrom(r))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleCreateSeller(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName      string   `json:"displayName"`
		Bio              *string  `json:"bio"`
		TrafficTypes     []string `json:"trafficTypes"`
		AllowedLanes     []string `json:"allowedLanes"`
		ComplianceAgreed bool     `json:"complianceAgreed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := s.sellerService.Create(r.Context(), userIDFrom(r), seller.CreateParams{
		DisplayName:      req.DisplayName,
		Bio:              req.Bio,
		TrafficTypes:     req.TrafficTypes,
		AllowedLanes:     req.AllowedLanes,
		ComplianceAgreed: req.ComplianceAgreed,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSellerResponse(profile))
}

func (s *Server) handleListSellers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	profiles, err := s.sellerService.List(r.Context(), limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	items := make([]sellerResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toSellerResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleSeller(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing seller id")
		return
	}

	var (
		profile seller.Profile
		err     error
	)
	if id == "me" {
		profile, err = s.sellerService.GetByUserID(r.Context(), userIDFrom(r))
	} else {
		profile, err = s.sellerService.GetByID(r.Context(), id)
	}
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellerResponse(profile))
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		TrafficType string  `json:"trafficType"`
		Lane        string  `json:"lane"`
		Price       float64 `json:"price"`
		MinOrder    int     `json:"minOrder"`
		MaxDaily    int     `json:"maxDaily"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l, err := s.listingService.Create(r.Context(), userIDFrom(r), listing.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		TrafficType: req.TrafficType,
		Lane:        req.Lane,
		Price:       req.Price,
		MinOrder:    req.MinOrder,
		MaxDaily:    req.MaxDaily,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	items, total, err := s.listingService.List(r.Context(), userIDFrom(r), listing.Filters{
		SellerID:    q.Get("sellerId"),
		Lane:        q.Get("lane"),
		TrafficType: q.Get("trafficType"),
		ActiveOnly:  q.Get("active") == "true",
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}

	out := make([]listingResponse, 0, len(items))
	for _, l := range items {
		out = append(out, toListingResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.listingService.Get(r.Context(), userIDFrom(r), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string  `json:"title"`
		Description *string  `json:"description"`
		Price       *float64 `json:"price"`
		MinOrder    *int     `json:"minOrder"`
		MaxDaily    *int     `json:"maxDaily"`
		IsActive    *bool    `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l, err := s.listingService.Update(r.Context(), userIDFrom(r), r.PathValue("id"), listing.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		MinOrder:    req.MinOrder,
		MaxDaily:    req.MaxDaily,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	if err := s.listingService.Delete(r.Context(), userIDFrom(r), r.PathValue("id")); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID      string `json:"listingId"`
		Quantity       int    `json:"quantity"`
		DestinationURL string `json:"destinationUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := s.orderService.Create(r.Context(), userIDFrom(r), order.CreateParams{
		ListingID:      req.ListingID,
		Quantity:       req.Quantity,
		DestinationURL: req.DestinationURL,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	items, total, err := s.orderService.List(r.Context(), userIDFrom(r), order.Filters{
		Status:   order.Status(q.Get("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(items))
	for _, o := range items {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orderService.Get(r.Context(), userIDFrom(r), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status      string  `json:"status"`
		TrackingURL *string `json:"trackingUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orderService.Update(r.Context(), userIDFrom(r), r.PathValue("id"), order.UpdateParams{
		Status:      order.Status(req.Status),
		TrackingURL: req.TrackingURL,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}

	resp := toOrderResponse(result.Order)
	resp.EscrowWarning = result.EscrowWarning
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrderEscrow(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	// Visibility follows the order's: only parties and admins.
	if _, err := s.orderService.Get(r.Context(), userIDFrom(r), orderID); err != nil {
		s.serviceError(w, err)
		return
	}

	esc, err := s.escrowService.GetByOrder(r.Context(), orderID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscrowResponse(esc))
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := s.disputeService.Open(r.Context(), userIDFrom(r), req.OrderID, req.Reason)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	items, total, err := s.disputeService.List(r.Context(), userIDFrom(r), dispute.Filters{
		Status:   dispute.Status(q.Get("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}

	out := make([]disputeResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toDisputeResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": total})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	d, err := s.disputeService.Get(r.Context(), userIDFrom(r), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision    string `json:"decision"`
		Resolution  string `json:"resolution"`
		RefundBuyer bool   `json:"refundBuyer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.disputeService.Resolve(r.Context(), userIDFrom(r), r.PathValue("id"), dispute.ResolveParams{
		Decision:    dispute.Decision(req.Decision),
		Resolution:  req.Resolution,
		RefundBuyer: req.RefundBuyer,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dispute": toDisputeResponse(res.Dispute),
		"order":   toOrderResponse(res.Order),
	})
}

func (s *Server) handleApproveSeller(w http.ResponseWriter, r *http.Request) {
	u, err := s.adminService.ApproveSeller(r.Context(), userIDFrom(r), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleBanUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.adminService.BanUser(r.Context(), userIDFrom(r), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.adminService.UnbanUser(r.Context(), userIDFrom(r), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func (s *Server) handleGrantLane(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lane string `json:"lane"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.adminService.GrantLaneAccess(r.Context(), userIDFrom(r), r.PathValue("id"), auth.Lane(req.Lane))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}
