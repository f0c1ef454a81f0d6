package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"trafficlane/admin"
	"trafficlane/auth"
	"trafficlane/config"
	"trafficlane/db"
	"trafficlane/dispute"
	"trafficlane/escrow"
	"trafficlane/listing"
	"trafficlane/order"
	"trafficlane/seller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	sellerRepo := seller.NewRepository(pool)
	sellerService := seller.NewService(sellerRepo, authService)
	listingRepo := listing.NewRepository(pool)
	listingService := listing.NewService(listingRepo, authService, sellerRepo)

	escrowRepo := escrow.NewRepository()
	orderRepo := order.NewRepository(pool)
	orderService := order.NewService(pool, orderRepo, escrowRepo, authService, listingRepo, sellerRepo)
	disputeService := dispute.NewService(pool, dispute.NewRepository(pool), orderRepo, escrowRepo, authService)
	adminService := admin.NewService(admin.NewRepository(pool), authService)
	escrowService := escrow.NewService(pool, escrowRepo)

	server := &Server{
		authService:    authService,
		sellerService:  sellerService,
		listingService: listingService,
		orderService:   orderService,
		disputeService: disputeService,
		adminService:   adminService,
		escrowService:  escrowService,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
