package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssetRegistry owns asset identity and the status state machine.
type AssetRegistry interface {
	// Standalone operations (manage their own transactions). Issue records no
	// issuance; ReturnToStock and WriteOff refuse assets with an open one.
	Register(ctx context.Context, productID int, serialNumber *string, inventoryNumber string, locationID *int) (*Asset, error)
	Issue(ctx context.Context, assetID int) (*Asset, error)
	ReturnToStock(ctx context.Context, assetID, locationID int) (*Asset, error)
	WriteOff(ctx context.Context, assetID int) (*Asset, error)
	SendToMaintenance(ctx context.Context, assetID int) (*Asset, error)
	CompleteMaintenance(ctx context.Context, assetID, locationID int) (*Asset, error)
	Get(ctx context.Context, assetID int) (*Asset, error)
	GetByInventoryNumber(ctx context.Context, inventoryNumber string) (*Asset, error)

	// TX-scoped transitions used by IssuanceTracker and WriteOffProcessor to keep
	// the status change atomic with their own records.
	IssueTx(ctx context.Context, tx pgx.Tx, assetID int) (*Asset, error)
	ReturnToStockTx(ctx context.Context, tx pgx.Tx, assetID, locationID int) (*Asset, error)
	WriteOffTx(ctx context.Context, tx pgx.Tx, assetID int) (*Asset, error)
}

type assetRegistry struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAssetRegistry(pool *pgxpool.Pool, logger *slog.Logger) AssetRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &assetRegistry{pool: pool, logger: logger}
}

const assetColumns = `id, product_id, serial_number, inventory_number, status, current_location_id, created_at, updated_at`

func scanAsset(row pgx.Row) (*Asset, error) {
	var a Asset
	var status string
	if err := row.Scan(&a.ID, &a.ProductID, &a.SerialNumber, &a.InventoryNumber, &status,
		&a.CurrentLocationID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = AssetStatus(status)
	return &a, nil
}

func getAsset(ctx context.Context, q dbtx, assetID int, forUpdate bool) (*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAsset(q.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("asset %d not found", assetID)
		}
		return nil, fmt.Errorf("failed to fetch asset %d: %w", assetID, err)
	}
	return a, nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (r *assetRegistry) Register(ctx context.Context, productID int, serialNumber *string, inventoryNumber string, locationID *int) (*Asset, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	product, err := getProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if err := validateRegistration(product, inventoryNumber); err != nil {
		return nil, err
	}
	if locationID != nil {
		if _, err := getActiveLocation(ctx, tx, *locationID); err != nil {
			return nil, err
		}
	}

	a, err := scanAsset(tx.QueryRow(ctx, `
		INSERT INTO assets (product_id, serial_number, inventory_number, status, current_location_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+assetColumns,
		productID, serialNumber, inventoryNumber, string(StatusInStock), locationID,
	))
	if err != nil {
		return nil, storageError("insert asset", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit asset registration: %w", err)
	}
	r.logger.Info("asset registered", "asset_id", a.ID, "inventory_number", a.InventoryNumber, "product_id", productID)
	return a, nil
}

func (r *assetRegistry) Issue(ctx context.Context, assetID int) (*Asset, error) {
	return r.inTx(ctx, "issue", func(tx pgx.Tx) (*Asset, error) {
		return r.IssueTx(ctx, tx, assetID)
	})
}

func (r *assetRegistry) ReturnToStock(ctx context.Context, assetID, locationID int) (*Asset, error) {
	return r.inTx(ctx, "return", func(tx pgx.Tx) (*Asset, error) {
		if err := refuseTrackedTx(ctx, tx, assetID, "return it through the issuance tracker"); err != nil {
			return nil, err
		}
		return r.ReturnToStockTx(ctx, tx, assetID, locationID)
	})
}

func (r *assetRegistry) WriteOff(ctx context.Context, assetID int) (*Asset, error) {
	return r.inTx(ctx, "write off", func(tx pgx.Tx) (*Asset, error) {
		if err := refuseTrackedTx(ctx, tx, assetID, "write it off through the write-off processor"); err != nil {
			return nil, err
		}
		return r.WriteOffTx(ctx, tx, assetID)
	})
}

// refuseTrackedTx locks the asset and fails if it has an open issuance, which
// a bare status change would leave dangling.
func refuseTrackedTx(ctx context.Context, tx pgx.Tx, assetID int, hint string) error {
	a, err := getAsset(ctx, tx, assetID, true)
	if err != nil {
		return err
	}
	active, err := getActiveIssuance(ctx, tx, assetID, false)
	if err != nil {
		return err
	}
	if active != nil {
		return notAvailableErrorf("asset %s is held by %s under issuance %d; %s",
			a.InventoryNumber, active.Recipient, active.ID, hint)
	}
	return nil
}

func (r *assetRegistry) SendToMaintenance(ctx context.Context, assetID int) (*Asset, error) {
	return r.inTx(ctx, "send to maintenance", func(tx pgx.Tx) (*Asset, error) {
		return r.transitionTx(ctx, tx, assetID, transitionSendToMaintenance, nil)
	})
}

func (r *assetRegistry) CompleteMaintenance(ctx context.Context, assetID, locationID int) (*Asset, error) {
	return r.inTx(ctx, "complete maintenance", func(tx pgx.Tx) (*Asset, error) {
		return r.transitionTx(ctx, tx, assetID, transitionCompleteMaintenance, &locationID)
	})
}

func (r *assetRegistry) Get(ctx context.Context, assetID int) (*Asset, error) {
	return getAsset(ctx, r.pool, assetID, false)
}

func (r *assetRegistry) GetByInventoryNumber(ctx context.Context, inventoryNumber string) (*Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE inventory_number = $1`, inventoryNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("asset with inventory number %s not found", inventoryNumber)
		}
		return nil, fmt.Errorf("failed to fetch asset %s: %w", inventoryNumber, err)
	}
	return a, nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (r *assetRegistry) IssueTx(ctx context.Context, tx pgx.Tx, assetID int) (*Asset, error) {
	return r.transitionTx(ctx, tx, assetID, transitionIssue, nil)
}

func (r *assetRegistry) ReturnToStockTx(ctx context.Context, tx pgx.Tx, assetID, locationID int) (*Asset, error) {
	return r.transitionTx(ctx, tx, assetID, transitionReturn, &locationID)
}

func (r *assetRegistry) WriteOffTx(ctx context.Context, tx pgx.Tx, assetID int) (*Asset, error) {
	return r.transitionTx(ctx, tx, assetID, transitionWriteOff, nil)
}

// transitionTx locks the asset row, checks the transition against its current
// status and applies it. A non-nil locationID also moves the asset there.
func (r *assetRegistry) transitionTx(ctx context.Context, tx pgx.Tx, assetID int, t assetTransition, locationID *int) (*Asset, error) {
	a, err := getAsset(ctx, tx, assetID, true)
	if err != nil {
		return nil, err
	}
	if err := t.check(a); err != nil {
		return nil, err
	}
	if locationID != nil {
		if _, err := getActiveLocation(ctx, tx, *locationID); err != nil {
			return nil, err
		}
	}

	updated, err := scanAsset(tx.QueryRow(ctx, `
		UPDATE assets
		SET status = $1,
		    current_location_id = COALESCE($2, current_location_id),
		    updated_at = NOW()
		WHERE id = $3
		RETURNING `+assetColumns,
		string(t.to), locationID, assetID,
	))
	if err != nil {
		return nil, storageError("update asset status", err)
	}
	return updated, nil
}

func (r *assetRegistry) inTx(ctx context.Context, name string, fn func(tx pgx.Tx) (*Asset, error)) (*Asset, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit asset %s: %w", name, err)
	}
	r.logger.Info("asset status changed", "asset_id", a.ID, "inventory_number", a.InventoryNumber, "status", string(a.Status))
	return a, nil
}
