package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IssuanceTracker records checkouts and returns of assets. Each operation
// moves the asset through the registry in the same transaction.
type IssuanceTracker interface {
	CreateIssuance(ctx context.Context, assetID int, recipient, comment string) (*Issuance, error)
	CreateReturn(ctx context.Context, issuanceID, locationID int, comment string) (*Issuance, error)
	ListActive(ctx context.Context) ([]Issuance, error)
	FindByRecipient(ctx context.Context, substring string) ([]Issuance, error)
	ListForAsset(ctx context.Context, assetID int) ([]Issuance, error)

	// CloseActiveTx returns the open issuance of an asset, if any, without
	// touching the asset status. Used when an issued asset is written off.
	CloseActiveTx(ctx context.Context, tx pgx.Tx, assetID int, comment string) (*Issuance, error)
}

type issuanceTracker struct {
	pool     *pgxpool.Pool
	registry AssetRegistry
	logger   *slog.Logger
}

func NewIssuanceTracker(pool *pgxpool.Pool, registry AssetRegistry, logger *slog.Logger) IssuanceTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &issuanceTracker{pool: pool, registry: registry, logger: logger}
}

const issuanceColumns = `id, asset_id, recipient, issue_date, return_date, issue_comment, return_comment`

func scanIssuance(row pgx.Row) (*Issuance, error) {
	var i Issuance
	if err := row.Scan(&i.ID, &i.AssetID, &i.Recipient, &i.IssueDate, &i.ReturnDate,
		&i.IssueComment, &i.ReturnComment); err != nil {
		return nil, err
	}
	return &i, nil
}

func getActiveIssuance(ctx context.Context, q dbtx, assetID int, forUpdate bool) (*Issuance, error) {
	query := `SELECT ` + issuanceColumns + ` FROM issuances WHERE asset_id = $1 AND return_date IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	i, err := scanIssuance(q.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch active issuance: %w", err)
	}
	return i, nil
}

func (t *issuanceTracker) CreateIssuance(ctx context.Context, assetID int, recipient, comment string) (*Issuance, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, validationErrorf("recipient is required")
	}

	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	asset, err := getAsset(ctx, tx, assetID, true)
	if err != nil {
		return nil, err
	}
	active, err := getActiveIssuance(ctx, tx, assetID, false)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, notAvailableErrorf("asset %s is already issued to %s since %s",
			asset.InventoryNumber, active.Recipient, active.IssueDate.Format("2006-01-02"))
	}
	if err := transitionIssue.check(asset); err != nil {
		return nil, err
	}

	issuance, err := scanIssuance(tx.QueryRow(ctx, `
		INSERT INTO issuances (asset_id, recipient, issue_comment)
		VALUES ($1, $2, $3)
		RETURNING `+issuanceColumns,
		assetID, recipient, comment,
	))
	if err != nil {
		return nil, storageError("insert issuance", err)
	}
	if _, err := t.registry.IssueTx(ctx, tx, assetID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit issuance: %w", err)
	}
	t.logger.Info("asset issued", "issuance_id", issuance.ID, "asset_id", assetID,
		"inventory_number", asset.InventoryNumber, "recipient", recipient)
	return issuance, nil
}

func (t *issuanceTracker) CreateReturn(ctx context.Context, issuanceID, locationID int, comment string) (*Issuance, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Asset row before issuance row, the order CreateIssuance and
	// WriteOffAsset take. asset_id never changes, so it is read unlocked.
	var assetID int
	err = tx.QueryRow(ctx, `SELECT asset_id FROM issuances WHERE id = $1`, issuanceID).Scan(&assetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("issuance %d not found", issuanceID)
		}
		return nil, fmt.Errorf("failed to fetch issuance %d: %w", issuanceID, err)
	}
	if _, err := getAsset(ctx, tx, assetID, true); err != nil {
		return nil, err
	}

	current, err := scanIssuance(tx.QueryRow(ctx,
		`SELECT `+issuanceColumns+` FROM issuances WHERE id = $1 FOR UPDATE`, issuanceID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock issuance %d: %w", issuanceID, err)
	}
	if !current.IsActive() {
		return nil, conflictErrorf("issuance %d was already returned on %s",
			issuanceID, current.ReturnDate.Format("2006-01-02"))
	}

	returned, err := closeIssuanceTx(ctx, tx, issuanceID, comment)
	if err != nil {
		return nil, err
	}
	if _, err := t.registry.ReturnToStockTx(ctx, tx, current.AssetID, locationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit return: %w", err)
	}
	t.logger.Info("asset returned", "issuance_id", issuanceID, "asset_id", current.AssetID, "location_id", locationID)
	return returned, nil
}

func (t *issuanceTracker) CloseActiveTx(ctx context.Context, tx pgx.Tx, assetID int, comment string) (*Issuance, error) {
	active, err := getActiveIssuance(ctx, tx, assetID, true)
	if err != nil || active == nil {
		return nil, err
	}
	return closeIssuanceTx(ctx, tx, active.ID, comment)
}

func closeIssuanceTx(ctx context.Context, tx pgx.Tx, issuanceID int, comment string) (*Issuance, error) {
	i, err := scanIssuance(tx.QueryRow(ctx, `
		UPDATE issuances
		SET return_date = GREATEST(NOW(), issue_date), return_comment = $1
		WHERE id = $2
		RETURNING `+issuanceColumns,
		comment, issuanceID,
	))
	if err != nil {
		return nil, storageError("close issuance", err)
	}
	return i, nil
}

func (t *issuanceTracker) ListActive(ctx context.Context) ([]Issuance, error) {
	return t.list(ctx, `WHERE return_date IS NULL ORDER BY issue_date, id`)
}

func (t *issuanceTracker) FindByRecipient(ctx context.Context, substring string) ([]Issuance, error) {
	return t.list(ctx, `WHERE recipient ILIKE $1 ORDER BY issue_date DESC, id DESC`,
		"%"+escapeLike(substring)+"%")
}

func (t *issuanceTracker) ListForAsset(ctx context.Context, assetID int) ([]Issuance, error) {
	return t.list(ctx, `WHERE asset_id = $1 ORDER BY issue_date DESC, id DESC`, assetID)
}

func (t *issuanceTracker) list(ctx context.Context, where string, args ...any) ([]Issuance, error) {
	rows, err := t.pool.Query(ctx, `SELECT `+issuanceColumns+` FROM issuances `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issuances: %w", err)
	}
	defer rows.Close()

	var out []Issuance
	for rows.Next() {
		i, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		out = append(out, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read issuances: %w", err)
	}
	return out, nil
}
