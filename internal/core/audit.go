package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BalanceDrift is a stock row whose stored quantity differs from the quantity
// implied by the journal.
type BalanceDrift struct {
	ProductID  int `json:"product_id"`
	LocationID int `json:"location_id"`
	Quantity   int `json:"quantity"`
	Expected   int `json:"expected"`
}

// Auditor recomputes balances from the journal.
type Auditor struct {
	pool *pgxpool.Pool
}

func NewAuditor(pool *pgxpool.Pool) *Auditor {
	return &Auditor{pool: pool}
}

// ReconcileBalances returns every stock row where
// receipts in + transfers in - expenses out - transfers out != quantity.
// Consumable write-offs are covered by their linked EXPENSE rows.
func (a *Auditor) ReconcileBalances(ctx context.Context) ([]BalanceDrift, error) {
	rows, err := a.pool.Query(ctx, `
		WITH movements AS (
			SELECT product_id, to_location_id AS location_id, quantity AS delta
			FROM stock_operations
			WHERE operation_type IN ('RECEIPT', 'TRANSFER')
			UNION ALL
			SELECT product_id, from_location_id, -quantity
			FROM stock_operations
			WHERE operation_type IN ('EXPENSE', 'TRANSFER')
		),
		expected AS (
			SELECT product_id, location_id, SUM(delta) AS quantity
			FROM movements
			GROUP BY product_id, location_id
		)
		SELECT s.product_id, s.location_id, s.quantity, COALESCE(e.quantity, 0)
		FROM stocks s
		LEFT JOIN expected e ON e.product_id = s.product_id AND e.location_id = s.location_id
		WHERE s.quantity <> COALESCE(e.quantity, 0)
		ORDER BY s.product_id, s.location_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile balances: %w", err)
	}
	defer rows.Close()

	var drifts []BalanceDrift
	for rows.Next() {
		var d BalanceDrift
		var expected int64
		if err := rows.Scan(&d.ProductID, &d.LocationID, &d.Quantity, &expected); err != nil {
			return nil, fmt.Errorf("failed to scan balance drift: %w", err)
		}
		d.Expected = int(expected)
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balance drifts: %w", err)
	}
	return drifts, nil
}
