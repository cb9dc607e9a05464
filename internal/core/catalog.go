package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Product is a catalog record. Consumables are tracked by quantity in the
// stock ledger; durable products are tracked as individual assets.
type Product struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	IsConsumable bool      `json:"is_consumable"`
	Unit         string    `json:"unit"`
	MinStock     int       `json:"min_stock"`
	CreatedAt    time.Time `json:"created_at"`
}

// Location is a place stock and assets can be held.
type Location struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getProduct(ctx context.Context, q dbtx, productID int) (*Product, error) {
	var p Product
	err := q.QueryRow(ctx, `
		SELECT id, name, sku, is_consumable, unit, min_stock, created_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.SKU, &p.IsConsumable, &p.Unit, &p.MinStock, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("product %d not found", productID)
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}
	return &p, nil
}

func getLocation(ctx context.Context, q dbtx, locationID int) (*Location, error) {
	var l Location
	err := q.QueryRow(ctx, `
		SELECT id, name, is_active, created_at
		FROM locations
		WHERE id = $1
	`, locationID).Scan(&l.ID, &l.Name, &l.IsActive, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("location %d not found", locationID)
		}
		return nil, fmt.Errorf("failed to fetch location %d: %w", locationID, err)
	}
	return &l, nil
}

// getActiveLocation is used for destinations: stock and assets may leave an
// inactive location but never arrive at one.
func getActiveLocation(ctx context.Context, q dbtx, locationID int) (*Location, error) {
	l, err := getLocation(ctx, q, locationID)
	if err != nil {
		return nil, err
	}
	if !l.IsActive {
		return nil, validationErrorf("location %q is inactive", l.Name)
	}
	return l, nil
}

func requireConsumable(p *Product, operation string) error {
	if !p.IsConsumable {
		return validationErrorf("%s is only possible for consumables: product %q (%s) is durable", operation, p.Name, p.SKU)
	}
	return nil
}

func requireDurable(p *Product, operation string) error {
	if p.IsConsumable {
		return validationErrorf("%s is only possible for durable products: product %q (%s) is a consumable", operation, p.Name, p.SKU)
	}
	return nil
}
