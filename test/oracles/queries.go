package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the marketplace invariants checked during a stress run.
// Each query returns rows only when the invariant is violated.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_completed_escrow_released",
			SQL: `SELECT o.id FROM orders o
                  LEFT JOIN escrows e ON e.order_id = o.id
                  WHERE o.status = 'COMPLETED'
                    AND (e.id IS NULL OR e.released = false)`,
		},
		{
			Name: "O2_cancelled_escrow_gone",
			SQL: `SELECT o.id FROM orders o
                  JOIN escrows e ON e.order_id = o.id
                  WHERE o.status = 'CANCELLED'`,
		},
		{
			Name: "O3_disputed_iff_open_dispute",
			SQL: `SELECT o.id::text AS detail FROM orders o
                  WHERE o.status = 'DISPUTED'
                    AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.order_id = o.id AND d.status = 'OPEN')
                  UNION ALL
                  SELECT d.id::text FROM disputes d
                  JOIN orders o ON o.id = d.order_id
                  WHERE d.status = 'OPEN' AND o.status <> 'DISPUTED'`,
		},
		{
			Name: "O4_terminal_dispute_fields",
			SQL: `SELECT id FROM disputes
                  WHERE status IN ('RESOLVED','REJECTED')
                    AND (resolution IS NULL OR resolved_by IS NULL)`,
		},
		{
			Name: "O5_active_escrow_live",
			SQL: `SELECT o.id FROM orders o
                  LEFT JOIN escrows e ON e.order_id = o.id
                  WHERE o.status = 'ACTIVE'
                    AND (e.id IS NULL OR e.released = true)`,
		},
		{
			Name: "O6_pending_unfunded",
			SQL: `SELECT o.id FROM orders o
                  JOIN escrows e ON e.order_id = o.id
                  WHERE o.status = 'PENDING'`,
		},
		{
			Name: "O7_price_consistency",
			SQL: `SELECT o.id FROM orders o
                  JOIN listings l ON l.id = o.listing_id
                  WHERE o.total_price <> ROUND(l.price * o.quantity / 1000.0, 2)`,
		},
		{
			Name: "O8_release_attribution",
			SQL: `SELECT id FROM escrows
                  WHERE released = false AND released_by IS NOT NULL`,
		},
		{
			Name: "O9_escrow_amount_matches",
			SQL: `SELECT e.id FROM escrows e
                  JOIN orders o ON o.id = e.order_id
                  WHERE e.amount <> o.total_price`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
