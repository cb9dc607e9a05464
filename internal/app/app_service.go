package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"inventory-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BalanceReconciler is satisfied by *core.Auditor.
type BalanceReconciler interface {
	ReconcileBalances(ctx context.Context) ([]core.BalanceDrift, error)
}

type appService struct {
	registry  core.AssetRegistry
	ledger    core.StockLedger
	tracker   core.IssuanceTracker
	writeOffs core.WriteOffProcessor
	auditor   BalanceReconciler
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	registry core.AssetRegistry,
	ledger core.StockLedger,
	tracker core.IssuanceTracker,
	writeOffs core.WriteOffProcessor,
	auditor BalanceReconciler,
) ApplicationService {
	return &appService{
		registry:  registry,
		ledger:    ledger,
		tracker:   tracker,
		writeOffs: writeOffs,
		auditor:   auditor,
	}
}

// NewFromPool wires every core service against pool. observer receives stock
// changes after commit and may be nil.
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger, observer core.StockObserver) ApplicationService {
	registry := core.NewAssetRegistry(pool, logger)
	ledger := core.NewStockLedger(pool, logger, observer)
	tracker := core.NewIssuanceTracker(pool, registry, logger)
	writeOffs := core.NewWriteOffProcessor(pool, ledger, registry, tracker, logger)
	return NewAppService(registry, ledger, tracker, writeOffs, core.NewAuditor(pool))
}

func validationError(msg string) error {
	return &core.Error{Kind: core.KindValidation, Message: msg}
}

// resolveAsset looks ref up as an inventory number first. Only when no asset
// carries that inventory number is an all-digit ref treated as an asset ID,
// so numeric inventory numbers always win over IDs.
func (s *appService) resolveAsset(ctx context.Context, ref string) (*core.Asset, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, validationError("asset reference is required")
	}
	a, err := s.registry.GetByInventoryNumber(ctx, ref)
	if err == nil || !errors.Is(err, core.ErrNotFound) {
		return a, err
	}
	id, convErr := strconv.Atoi(ref)
	if convErr != nil || id <= 0 {
		return nil, err
	}
	return s.registry.Get(ctx, id)
}

// ── Assets and issuances ──────────────────────────────────────────────────────

func (s *appService) RegisterAsset(ctx context.Context, req RegisterAssetRequest) (*AssetResult, error) {
	var serial *string
	if sn := strings.TrimSpace(req.SerialNumber); sn != "" {
		serial = &sn
	}
	var location *int
	if req.LocationID != 0 {
		location = &req.LocationID
	}
	a, err := s.registry.Register(ctx, req.ProductID, serial, strings.TrimSpace(req.InventoryNumber), location)
	if err != nil {
		return nil, err
	}
	return &AssetResult{Asset: a}, nil
}

func (s *appService) GetAsset(ctx context.Context, ref string) (*AssetResult, error) {
	a, err := s.resolveAsset(ctx, ref)
	if err != nil {
		return nil, err
	}
	history, err := s.tracker.ListForAsset(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &AssetResult{Asset: a, Issuances: history}, nil
}

func (s *appService) IssueAsset(ctx context.Context, req IssueAssetRequest) (*IssuanceResult, error) {
	a, err := s.resolveAsset(ctx, req.AssetRef)
	if err != nil {
		return nil, err
	}
	iss, err := s.tracker.CreateIssuance(ctx, a.ID, req.Recipient, req.Comment)
	if err != nil {
		return nil, err
	}
	a, err = s.registry.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &IssuanceResult{Issuance: iss, Asset: a}, nil
}

func (s *appService) ReturnAsset(ctx context.Context, req ReturnAssetRequest) (*IssuanceResult, error) {
	issuanceID := req.IssuanceID
	if issuanceID == 0 {
		a, err := s.resolveAsset(ctx, req.AssetRef)
		if err != nil {
			return nil, err
		}
		history, err := s.tracker.ListForAsset(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, iss := range history {
			if iss.IsActive() {
				issuanceID = iss.ID
				break
			}
		}
		if issuanceID == 0 {
			return nil, &core.Error{Kind: core.KindNotAvailable,
				Message: "asset " + a.InventoryNumber + " has no active issuance"}
		}
	}

	iss, err := s.tracker.CreateReturn(ctx, issuanceID, req.LocationID, req.Comment)
	if err != nil {
		return nil, err
	}
	a, err := s.registry.Get(ctx, iss.AssetID)
	if err != nil {
		return nil, err
	}
	return &IssuanceResult{Issuance: iss, Asset: a}, nil
}

func (s *appService) SendToMaintenance(ctx context.Context, ref string) (*AssetResult, error) {
	a, err := s.resolveAsset(ctx, ref)
	if err != nil {
		return nil, err
	}
	a, err = s.registry.SendToMaintenance(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &AssetResult{Asset: a}, nil
}

func (s *appService) CompleteMaintenance(ctx context.Context, req CompleteMaintenanceRequest) (*AssetResult, error) {
	a, err := s.resolveAsset(ctx, req.AssetRef)
	if err != nil {
		return nil, err
	}
	a, err = s.registry.CompleteMaintenance(ctx, a.ID, req.LocationID)
	if err != nil {
		return nil, err
	}
	return &AssetResult{Asset: a}, nil
}

func (s *appService) ListActiveIssuances(ctx context.Context) (*IssuanceListResult, error) {
	list, err := s.tracker.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return &IssuanceListResult{Issuances: list}, nil
}

func (s *appService) FindIssuancesByRecipient(ctx context.Context, query string) (*IssuanceListResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validationError("recipient query is required")
	}
	list, err := s.tracker.FindByRecipient(ctx, query)
	if err != nil {
		return nil, err
	}
	return &IssuanceListResult{Issuances: list}, nil
}

// ── Consumable stock ──────────────────────────────────────────────────────────

func (s *appService) ReceiveStock(ctx context.Context, req StockMovementRequest) (*OperationResult, error) {
	op, err := s.ledger.Receipt(ctx, req.ProductID, req.LocationID, req.Quantity, req.Comment)
	if err != nil {
		return nil, err
	}
	return s.operationResult(ctx, op, req.LocationID)
}

func (s *appService) ExpendStock(ctx context.Context, req StockMovementRequest) (*OperationResult, error) {
	op, err := s.ledger.Expense(ctx, req.ProductID, req.LocationID, req.Quantity, req.Comment)
	if err != nil {
		return nil, err
	}
	return s.operationResult(ctx, op, req.LocationID)
}

func (s *appService) TransferStock(ctx context.Context, req TransferStockRequest) (*OperationResult, error) {
	op, err := s.ledger.Transfer(ctx, req.ProductID, req.FromLocationID, req.ToLocationID, req.Quantity, req.Comment)
	if err != nil {
		return nil, err
	}
	return s.operationResult(ctx, op, req.FromLocationID, req.ToLocationID)
}

// operationResult reads back the balances touched by op. The reads happen
// after commit, so a concurrent mutation may already be reflected.
func (s *appService) operationResult(ctx context.Context, op *core.StockOperation, locationIDs ...int) (*OperationResult, error) {
	res := &OperationResult{Operation: op}
	for _, loc := range locationIDs {
		qty, err := s.ledger.GetCurrentStock(ctx, op.ProductID, loc)
		if err != nil {
			return nil, err
		}
		res.Balances = append(res.Balances, StockQuantityResult{ProductID: op.ProductID, LocationID: loc, Quantity: qty})
	}
	return res, nil
}

func (s *appService) GetStock(ctx context.Context, productID, locationID int) (*StockQuantityResult, error) {
	qty, err := s.ledger.GetCurrentStock(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	return &StockQuantityResult{ProductID: productID, LocationID: locationID, Quantity: qty}, nil
}

func (s *appService) GetLowStock(ctx context.Context) (*StockLevelsResult, error) {
	levels, err := s.ledger.GetLowStockItems(ctx)
	if err != nil {
		return nil, err
	}
	return &StockLevelsResult{Levels: levels}, nil
}

func (s *appService) ListOperations(ctx context.Context, req ListOperationsRequest) (*OperationListResult, error) {
	ops, err := s.ledger.ListOperations(ctx, core.OperationFilter{
		ProductID: req.ProductID,
		Type:      core.OperationType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &OperationListResult{Operations: ops}, nil
}

// ── Write-offs and audit ──────────────────────────────────────────────────────

func (s *appService) WriteOffConsumable(ctx context.Context, req WriteOffConsumableRequest) (*WriteOffResult, error) {
	w, err := s.writeOffs.WriteOffConsumable(ctx, req.ProductID, req.LocationID, req.Quantity, req.Reason)
	if err != nil {
		return nil, err
	}
	return &WriteOffResult{WriteOff: w}, nil
}

func (s *appService) WriteOffAsset(ctx context.Context, req WriteOffAssetRequest) (*WriteOffResult, error) {
	a, err := s.resolveAsset(ctx, req.AssetRef)
	if err != nil {
		return nil, err
	}
	w, err := s.writeOffs.WriteOffAsset(ctx, a.ID, req.Reason)
	if err != nil {
		return nil, err
	}
	return &WriteOffResult{WriteOff: w}, nil
}

func (s *appService) ListWriteOffs(ctx context.Context, fromDate, toDate string) (*WriteOffListResult, error) {
	from, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return nil, validationError("invalid from date " + strconv.Quote(fromDate) + ", expected YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", toDate)
	if err != nil {
		return nil, validationError("invalid to date " + strconv.Quote(toDate) + ", expected YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, validationError("to date " + toDate + " is before from date " + fromDate)
	}
	list, err := s.writeOffs.ListByDateRange(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return &WriteOffListResult{WriteOffs: list, FromDate: fromDate, ToDate: toDate}, nil
}

func (s *appService) ReconcileBalances(ctx context.Context) (*ReconcileResult, error) {
	drifts, err := s.auditor.ReconcileBalances(ctx)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{Drifts: drifts}, nil
}
