package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WriteOffProcessor records terminal disposals of consumable quantities and
// durable assets.
type WriteOffProcessor interface {
	WriteOffConsumable(ctx context.Context, productID, locationID, qty int, reason string) (*WriteOff, error)
	WriteOffAsset(ctx context.Context, assetID int, reason string) (*WriteOff, error)
	// ListByDateRange returns write-offs created in [from, to), oldest first.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]WriteOff, error)
}

type writeOffProcessor struct {
	pool     *pgxpool.Pool
	ledger   StockLedger
	registry AssetRegistry
	tracker  IssuanceTracker
	logger   *slog.Logger
}

func NewWriteOffProcessor(pool *pgxpool.Pool, ledger StockLedger, registry AssetRegistry, tracker IssuanceTracker, logger *slog.Logger) WriteOffProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &writeOffProcessor{pool: pool, ledger: ledger, registry: registry, tracker: tracker, logger: logger}
}

const writeOffColumns = `id, product_id, quantity, stock_operation_id, asset_id, location_id, reason, created_at`

func scanWriteOff(row pgx.Row) (*WriteOff, error) {
	var w WriteOff
	var productID, quantity, opID, assetID *int
	if err := row.Scan(&w.ID, &productID, &quantity, &opID, &assetID, &w.LocationID, &w.Reason, &w.CreatedAt); err != nil {
		return nil, err
	}
	payload, err := payloadFromColumns(productID, quantity, opID, assetID)
	if err != nil {
		return nil, fmt.Errorf("write-off %d: %w", w.ID, err)
	}
	w.Payload = payload
	return &w, nil
}

func (p *writeOffProcessor) WriteOffConsumable(ctx context.Context, productID, locationID, qty int, reason string) (*WriteOff, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	op, level, err := p.ledger.ExpenseTx(ctx, tx, productID, locationID, qty, "write-off: "+reason)
	if err != nil {
		return nil, err
	}

	w, err := scanWriteOff(tx.QueryRow(ctx, `
		INSERT INTO write_offs (product_id, quantity, stock_operation_id, location_id, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+writeOffColumns,
		productID, qty, op.ID, locationID, reason,
	))
	if err != nil {
		return nil, storageError("insert write-off", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit write-off: %w", err)
	}
	p.logger.Info("consumable written off", "write_off_id", w.ID, "operation_id", op.ID,
		"product_id", productID, "location_id", locationID, "quantity", qty, "balance", level.Quantity)
	p.ledger.Notify(ctx, level)
	return w, nil
}

func (p *writeOffProcessor) WriteOffAsset(ctx context.Context, assetID int, reason string) (*WriteOff, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	asset, err := getAsset(ctx, tx, assetID, true)
	if err != nil {
		return nil, err
	}
	product, err := getProduct(ctx, tx, asset.ProductID)
	if err != nil {
		return nil, err
	}
	if err := requireDurable(product, "asset write-off"); err != nil {
		return nil, err
	}
	if err := transitionWriteOff.check(asset); err != nil {
		return nil, err
	}

	closed, err := p.tracker.CloseActiveTx(ctx, tx, assetID, "written off: "+reason)
	if err != nil {
		return nil, err
	}
	if _, err := p.registry.WriteOffTx(ctx, tx, assetID); err != nil {
		return nil, err
	}

	w, err := scanWriteOff(tx.QueryRow(ctx, `
		INSERT INTO write_offs (asset_id, location_id, reason)
		VALUES ($1, $2, $3)
		RETURNING `+writeOffColumns,
		assetID, asset.CurrentLocationID, reason,
	))
	if err != nil {
		return nil, storageError("insert write-off", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit write-off: %w", err)
	}
	attrs := []any{"write_off_id", w.ID, "asset_id", assetID, "inventory_number", asset.InventoryNumber}
	if closed != nil {
		attrs = append(attrs, "closed_issuance_id", closed.ID)
	}
	p.logger.Info("asset written off", attrs...)
	return w, nil
}

func (p *writeOffProcessor) ListByDateRange(ctx context.Context, from, to time.Time) ([]WriteOff, error) {
	if to.Before(from) {
		return nil, validationErrorf("date range end %s is before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+writeOffColumns+`
		FROM write_offs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query write-offs: %w", err)
	}
	defer rows.Close()

	var out []WriteOff
	for rows.Next() {
		w, err := scanWriteOff(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan write-off: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read write-offs: %w", err)
	}
	return out, nil
}
