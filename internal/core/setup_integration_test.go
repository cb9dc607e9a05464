package core_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Seed identifiers.
const (
	locMain     = 1
	locWorkshop = 2
	locDepot    = 3 // inactive

	prodPaper  = 1 // consumable, min_stock 5
	prodLaptop = 2 // durable
	prodToner  = 3 // consumable, min_stock 0
)

type testEnv struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	registry  core.AssetRegistry
	ledger    core.StockLedger
	tracker   core.IssuanceTracker
	writeOffs core.WriteOffProcessor
	auditor   *core.Auditor
	observed  *recordingObserver
}

// setupTestDB migrates the test database, truncates every inventory table
// and seeds two active locations, one inactive location and three products.
func setupTestDB(t *testing.T) *testEnv {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := db.Migrate(ctx, pool, os.DirFS("../../migrations"), logger); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE write_offs, stock_operations, stocks, issuances, assets, products, locations
		RESTART IDENTITY CASCADE;

		INSERT INTO locations (id, name, is_active) VALUES
		(1, 'Main Store', true),
		(2, 'Workshop',   true),
		(3, 'Old Depot',  false);

		INSERT INTO products (id, name, sku, is_consumable, unit, min_stock) VALUES
		(1, 'A4 Paper', 'PAP-A4', true,  'pack', 5),
		(2, 'Laptop',   'LAP-01', false, 'pcs',  0),
		(3, 'Toner',    'TON-01', true,  'pcs',  0);

		SELECT setval('locations_id_seq', 3);
		SELECT setval('products_id_seq', 3);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test data: %v", err)
	}

	observed := &recordingObserver{}
	registry := core.NewAssetRegistry(pool, logger)
	ledger := core.NewStockLedger(pool, logger, core.Observers{core.NewLowStockLogger(logger), observed})
	tracker := core.NewIssuanceTracker(pool, registry, logger)
	return &testEnv{
		ctx:       ctx,
		pool:      pool,
		registry:  registry,
		ledger:    ledger,
		tracker:   tracker,
		writeOffs: core.NewWriteOffProcessor(pool, ledger, registry, tracker, logger),
		auditor:   core.NewAuditor(pool),
		observed:  observed,
	}
}

// registerLaptop registers a durable asset with a unique inventory number at locMain.
func (e *testEnv) registerLaptop(t *testing.T) *core.Asset {
	t.Helper()
	loc := locMain
	a, err := e.registry.Register(e.ctx, prodLaptop, nil, "INV-"+uuid.NewString()[:8], &loc)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return a
}

func (e *testEnv) stock(t *testing.T, productID, locationID int) int {
	t.Helper()
	qty, err := e.ledger.GetCurrentStock(e.ctx, productID, locationID)
	if err != nil {
		t.Fatalf("GetCurrentStock failed: %v", err)
	}
	return qty
}

func (e *testEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := e.pool.QueryRow(e.ctx, query, args...).Scan(&n); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	return n
}

func requireKind(t *testing.T, err error, want error) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", core.KindOf(want))
	}
	if !errors.Is(err, want) {
		t.Fatalf("Expected %s error, got %s: %v", core.KindOf(want), core.KindOf(err), err)
	}
}
