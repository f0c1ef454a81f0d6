package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Buyer places funded orders against the seeded listing. Order insert and
// escrow funding share one transaction; the order only becomes ACTIVE once
// the escrow row lands.
func Buyer(ctx context.Context, pool *pgxpool.Pool, buyerID, sellerID, listingID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		qty := 1000 * (1 + rand.Intn(10))
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		var orderID string
		var total float64
		err = tx.QueryRow(ctx, `INSERT INTO orders (buyer_id, seller_id, listing_id, lane, quantity, destination_url, total_price, status)
                                 SELECT $1, $2, l.id, l.lane, $3::int, 'https://example.com/landing', ROUND(l.price * $3::int / 1000.0, 2), 'PENDING'
                                 FROM listings l WHERE l.id = $4
                                 RETURNING id, total_price`, buyerID, sellerID, qty, listingID).Scan(&orderID, &total)
		if err == nil {
			_, err = tx.Exec(ctx, `INSERT INTO escrows (order_id, amount) VALUES ($1, $2)`, orderID, total)
		}
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE orders SET status='ACTIVE', updated_at=now() WHERE id=$1`, orderID)
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil && !recoverable(err) {
			return fmt.Errorf("buyer: %w", err)
		}

		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Seller attaches tracking URLs to its ACTIVE orders, locking each order
// row first the way the order service does.
func Seller(ctx context.Context, pool *pgxpool.Pool, sellerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var orderID string
		err = tx.QueryRow(ctx, `SELECT id FROM orders WHERE seller_id=$1 AND status='ACTIVE' AND tracking_url IS NULL
                                 LIMIT 1 FOR UPDATE SKIP LOCKED`, sellerID).Scan(&orderID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE orders SET tracking_url=$2, updated_at=now() WHERE id=$1`,
				orderID, fmt.Sprintf("https://track.example.com/%s", orderID))
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !recoverable(err) {
			return fmt.Errorf("seller: %w", err)
		}

		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Completer releases escrows for delivered orders. The release and the
// COMPLETED flip ride one transaction; an already-released escrow or an
// open dispute leaves the order untouched.
func Completer(ctx context.Context, pool *pgxpool.Pool, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var orderID string
		err = tx.QueryRow(ctx, `SELECT o.id FROM orders o
                                 WHERE o.buyer_id=$1 AND o.status='ACTIVE'
                                   AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.order_id=o.id AND d.status='OPEN')
                                 LIMIT 1 FOR UPDATE OF o SKIP LOCKED`, buyerID).Scan(&orderID)
		if err == nil {
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, `UPDATE escrows SET released=true, released_by=$2, updated_at=now()
                                      WHERE order_id=$1 AND released=false`, orderID, buyerID)
			if err == nil && tag.RowsAffected() == 1 {
				_, err = tx.Exec(ctx, `UPDATE orders SET status='COMPLETED', updated_at=now() WHERE id=$1`, orderID)
			}
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !recoverable(err) {
			return fmt.Errorf("completer: %w", err)
		}

		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Canceller plays the admin cancelling ACTIVE orders: the refund deletes
// the escrow row and the order lands in CANCELLED in the same transaction.
func Canceller(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var orderID string
		err = tx.QueryRow(ctx, `SELECT o.id FROM orders o
                                 WHERE o.status='ACTIVE'
                                   AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.order_id=o.id AND d.status='OPEN')
                                 LIMIT 1 FOR UPDATE OF o SKIP LOCKED`).Scan(&orderID)
		if err == nil {
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, `DELETE FROM escrows WHERE order_id=$1 AND released=false`, orderID)
			if err == nil && tag.RowsAffected() == 1 {
				_, err = tx.Exec(ctx, `UPDATE orders SET status='CANCELLED', updated_at=now() WHERE id=$1`, orderID)
			}
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !recoverable(err) {
			return fmt.Errorf("canceller: %w", err)
		}

		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// Disputer opens disputes against ACTIVE orders with live escrows. The
// unique order_id constraint absorbs races with itself.
func Disputer(ctx context.Context, pool *pgxpool.Pool, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var orderID string
		err = tx.QueryRow(ctx, `SELECT o.id FROM orders o
                                 JOIN escrows e ON e.order_id = o.id AND e.released=false
                                 WHERE o.buyer_id=$1 AND o.status='ACTIVE'
                                 LIMIT 1 FOR UPDATE OF o SKIP LOCKED`, buyerID).Scan(&orderID)
		if err == nil {
			_, err = tx.Exec(ctx, `INSERT INTO disputes (order_id, opened_by, reason)
                                    VALUES ($1, $2, 'traffic quality far below the listed targeting')`, orderID, buyerID)
			if err == nil {
				_, err = tx.Exec(ctx, `UPDATE orders SET status='DISPUTED', updated_at=now() WHERE id=$1`, orderID)
			}
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !duplicate(err) && !recoverable(err) {
			return fmt.Errorf("disputer: %w", err)
		}

		time.Sleep(time.Duration(80+rand.Intn(120)) * time.Millisecond)
	}
}

// Resolver plays the admin closing OPEN disputes. The order row is locked
// first, then the dispute is moved to a terminal status before the escrow
// settles, mirroring the resolver service's ordering.
func Resolver(ctx context.Context, pool *pgxpool.Pool, adminID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var dispID, orderID string
		err = tx.QueryRow(ctx, `SELECT d.id, d.order_id FROM disputes d
                                 JOIN orders o ON o.id = d.order_id
                                 WHERE d.status='OPEN'
                                 LIMIT 1 FOR UPDATE OF o SKIP LOCKED`).Scan(&dispID, &orderID)
		if err == nil {
			switch rand.Intn(3) {
			case 0: // reject, order resumes
				_, err = tx.Exec(ctx, `UPDATE disputes SET status='REJECTED', resolution='no evidence of underdelivery', resolved_by=$2, updated_at=now()
                                        WHERE id=$1 AND status='OPEN'`, dispID, adminID)
				if err == nil {
					_, err = tx.Exec(ctx, `UPDATE orders SET status='ACTIVE', updated_at=now() WHERE id=$1`, orderID)
				}
			case 1: // resolve with refund
				_, err = tx.Exec(ctx, `UPDATE disputes SET status='RESOLVED', resolution='refunded the buyer', resolved_by=$2, updated_at=now()
                                        WHERE id=$1 AND status='OPEN'`, dispID, adminID)
				if err == nil {
					_, err = tx.Exec(ctx, `DELETE FROM escrows WHERE order_id=$1 AND released=false`, orderID)
				}
				if err == nil {
					_, err = tx.Exec(ctx, `UPDATE orders SET status='CANCELLED', updated_at=now() WHERE id=$1`, orderID)
				}
			default: // resolve in the seller's favor
				_, err = tx.Exec(ctx, `UPDATE disputes SET status='RESOLVED', resolution='delivery verified, paying the seller', resolved_by=$2, updated_at=now()
                                        WHERE id=$1 AND status='OPEN'`, dispID, adminID)
				if err == nil {
					_, err = tx.Exec(ctx, `UPDATE escrows SET released=true, released_by=$2, updated_at=now()
                                            WHERE order_id=$1 AND released=false`, orderID, adminID)
				}
				if err == nil {
					_, err = tx.Exec(ctx, `UPDATE orders SET status='COMPLETED', updated_at=now() WHERE id=$1`, orderID)
				}
			}
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !recoverable(err) {
			return fmt.Errorf("resolver: %w", err)
		}

		time.Sleep(time.Duration(60+rand.Intn(90)) * time.Millisecond)
	}
}

func duplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// recoverable reports whether the error is expected churn under chaos:
// serialization failures, deadlocks, or a backend killed mid-flight.
func recoverable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P01", "08006", "08003":
			return true
		}
	}
	return errors.Is(err, context.Canceled)
}
