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

// StockLedger keeps per-(product, location) balances for consumables. Every
// mutation writes exactly one journal row in the same transaction as the
// balance change.
type StockLedger interface {
	// Standalone operations (manage their own transactions).
	Receipt(ctx context.Context, productID, locationID, qty int, comment string) (*StockOperation, error)
	Expense(ctx context.Context, productID, locationID, qty int, comment string) (*StockOperation, error)
	Transfer(ctx context.Context, productID, fromLocationID, toLocationID, qty int, comment string) (*StockOperation, error)
	GetCurrentStock(ctx context.Context, productID, locationID int) (int, error)
	GetLowStockItems(ctx context.Context) ([]StockLevel, error)
	ListOperations(ctx context.Context, filter OperationFilter) ([]StockOperation, error)

	// ExpenseTx debits a balance within a caller-provided transaction and
	// returns the journal row with the resulting level. The caller must pass
	// the level to Notify after it commits.
	ExpenseTx(ctx context.Context, tx pgx.Tx, productID, locationID, qty int, comment string) (*StockOperation, StockLevel, error)
	// Notify delivers committed levels to the ledger's observer.
	Notify(ctx context.Context, levels ...StockLevel)
}

type stockLedger struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	observer StockObserver
}

// NewStockLedger returns a ledger. observer may be nil.
func NewStockLedger(pool *pgxpool.Pool, logger *slog.Logger, observer StockObserver) StockLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &stockLedger{pool: pool, logger: logger, observer: observer}
}

const operationColumns = `id, product_id, asset_id, operation_type, quantity, from_location_id, to_location_id, comment, created_at`

func scanOperation(row pgx.Row) (*StockOperation, error) {
	var op StockOperation
	var opType string
	if err := row.Scan(&op.ID, &op.ProductID, &op.AssetID, &opType, &op.Quantity,
		&op.FromLocationID, &op.ToLocationID, &op.Comment, &op.CreatedAt); err != nil {
		return nil, err
	}
	op.Type = OperationType(opType)
	return &op, nil
}

func insertOperation(ctx context.Context, tx pgx.Tx, productID int, opType OperationType, qty int, from, to *int, comment string) (*StockOperation, error) {
	op, err := scanOperation(tx.QueryRow(ctx, `
		INSERT INTO stock_operations (product_id, operation_type, quantity, from_location_id, to_location_id, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+operationColumns,
		productID, string(opType), qty, from, to, comment,
	))
	if err != nil {
		return nil, storageError("insert stock operation", err)
	}
	return op, nil
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (s *stockLedger) Receipt(ctx context.Context, productID, locationID, qty int, comment string) (*StockOperation, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	product, err := getProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if err := requireConsumable(product, "receipt"); err != nil {
		return nil, err
	}
	location, err := getActiveLocation(ctx, tx, locationID)
	if err != nil {
		return nil, err
	}

	balance, err := creditTx(ctx, tx, productID, locationID, qty)
	if err != nil {
		return nil, err
	}
	op, err := insertOperation(ctx, tx, productID, OperationReceipt, qty, nil, &locationID, comment)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit receipt: %w", err)
	}
	s.logger.Info("stock received", "operation_id", op.ID, "product_id", productID,
		"location_id", locationID, "quantity", qty, "balance", balance)
	s.Notify(ctx, newStockLevel(product, location, balance))
	return op, nil
}

func (s *stockLedger) Expense(ctx context.Context, productID, locationID, qty int, comment string) (*StockOperation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	op, level, err := s.ExpenseTx(ctx, tx, productID, locationID, qty, comment)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expense: %w", err)
	}
	s.logger.Info("stock expensed", "operation_id", op.ID, "product_id", productID,
		"location_id", locationID, "quantity", qty, "balance", level.Quantity)
	s.Notify(ctx, level)
	return op, nil
}

func (s *stockLedger) Transfer(ctx context.Context, productID, fromLocationID, toLocationID, qty int, comment string) (*StockOperation, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}
	if fromLocationID == toLocationID {
		return nil, conflictErrorf("cannot transfer to the same location %d", fromLocationID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	product, err := getProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if err := requireConsumable(product, "transfer"); err != nil {
		return nil, err
	}
	from, err := getLocation(ctx, tx, fromLocationID)
	if err != nil {
		return nil, err
	}
	to, err := getActiveLocation(ctx, tx, toLocationID)
	if err != nil {
		return nil, err
	}

	// Lock whichever of the two rows exist in ascending location order so two
	// opposite transfers cannot deadlock.
	if _, err := tx.Exec(ctx, `
		SELECT id FROM stocks
		WHERE product_id = $1 AND location_id = ANY($2)
		ORDER BY location_id
		FOR UPDATE
	`, productID, []int{fromLocationID, toLocationID}); err != nil {
		return nil, fmt.Errorf("failed to lock stock rows: %w", err)
	}

	fromBalance, err := debitTx(ctx, tx, product, from, qty)
	if err != nil {
		return nil, err
	}
	toBalance, err := creditTx(ctx, tx, productID, toLocationID, qty)
	if err != nil {
		return nil, err
	}
	op, err := insertOperation(ctx, tx, productID, OperationTransfer, qty, &fromLocationID, &toLocationID, comment)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	s.logger.Info("stock transferred", "operation_id", op.ID, "product_id", productID,
		"from_location_id", fromLocationID, "to_location_id", toLocationID, "quantity", qty)
	s.Notify(ctx, newStockLevel(product, from, fromBalance), newStockLevel(product, to, toBalance))
	return op, nil
}

func (s *stockLedger) GetCurrentStock(ctx context.Context, productID, locationID int) (int, error) {
	var qty int
	err := s.pool.QueryRow(ctx,
		"SELECT quantity FROM stocks WHERE product_id = $1 AND location_id = $2",
		productID, locationID,
	).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query stock: %w", err)
	}
	return qty, nil
}

func (s *stockLedger) GetLowStockItems(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.sku, p.unit, l.id, l.name, s.quantity, p.min_stock
		FROM stocks s
		JOIN products p  ON p.id = s.product_id
		JOIN locations l ON l.id = s.location_id
		WHERE s.quantity < p.min_stock
		ORDER BY p.sku, l.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.SKU, &l.Unit,
			&l.LocationID, &l.LocationName, &l.Quantity, &l.MinStock); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock levels: %w", err)
	}
	return levels, nil
}

func (s *stockLedger) ListOperations(ctx context.Context, filter OperationFilter) ([]StockOperation, error) {
	var conds []string
	var args []any
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.Type != "" {
		if !filter.Type.Valid() {
			return nil, validationErrorf("unknown operation type %q", filter.Type)
		}
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("operation_type = $%d", len(args)))
	}

	query := `SELECT ` + operationColumns + ` FROM stock_operations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock operations: %w", err)
	}
	defer rows.Close()

	var ops []StockOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock operation: %w", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stock operations: %w", err)
	}
	return ops, nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *stockLedger) ExpenseTx(ctx context.Context, tx pgx.Tx, productID, locationID, qty int, comment string) (*StockOperation, StockLevel, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, StockLevel{}, err
	}
	product, err := getProduct(ctx, tx, productID)
	if err != nil {
		return nil, StockLevel{}, err
	}
	if err := requireConsumable(product, "expense"); err != nil {
		return nil, StockLevel{}, err
	}
	location, err := getLocation(ctx, tx, locationID)
	if err != nil {
		return nil, StockLevel{}, err
	}

	balance, err := debitTx(ctx, tx, product, location, qty)
	if err != nil {
		return nil, StockLevel{}, err
	}
	op, err := insertOperation(ctx, tx, productID, OperationExpense, qty, &locationID, nil, comment)
	if err != nil {
		return nil, StockLevel{}, err
	}
	return op, newStockLevel(product, location, balance), nil
}

func (s *stockLedger) Notify(ctx context.Context, levels ...StockLevel) {
	notifyObservers(ctx, s.logger, s.observer, levels)
}

// creditTx adds qty to the balance, creating the row at zero first if it does
// not exist. Returns the new balance.
func creditTx(ctx context.Context, tx pgx.Tx, productID, locationID, qty int) (int, error) {
	var balance int
	err := tx.QueryRow(ctx, `
		INSERT INTO stocks (product_id, location_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, location_id) DO UPDATE
		SET quantity   = stocks.quantity + EXCLUDED.quantity,
		    updated_at = NOW()
		RETURNING quantity
	`, productID, locationID, qty).Scan(&balance)
	if err != nil {
		return 0, storageError("credit stock", err)
	}
	return balance, nil
}

// debitTx locks the balance row and subtracts qty. A missing row is NotFound,
// a short balance is InsufficientStock. Returns the new balance.
func debitTx(ctx context.Context, tx pgx.Tx, p *Product, l *Location, qty int) (int, error) {
	var stockID, available int
	err := tx.QueryRow(ctx, `
		SELECT id, quantity FROM stocks
		WHERE product_id = $1 AND location_id = $2
		FOR UPDATE
	`, p.ID, l.ID).Scan(&stockID, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFoundErrorf("no stock of %s at %s: available 0, requested %d", p.SKU, l.Name, qty)
		}
		return 0, fmt.Errorf("failed to lock stock: %w", err)
	}
	if qty > available {
		return 0, insufficientStockErrorf("insufficient stock of %s at %s: available %d, requested %d", p.SKU, l.Name, available, qty)
	}

	var balance int
	err = tx.QueryRow(ctx, `
		UPDATE stocks
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING quantity
	`, qty, stockID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, insufficientStockErrorf("insufficient stock of %s at %s: requested %d", p.SKU, l.Name, qty)
		}
		return 0, storageError("debit stock", err)
	}
	return balance, nil
}
