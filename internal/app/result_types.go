package app

import "inventory-ledger/internal/core"

// AssetResult is returned by asset lifecycle operations.
type AssetResult struct {
	Asset     *core.Asset
	Issuances []core.Issuance // populated by GetAsset only
}

// IssuanceResult is returned by IssueAsset and ReturnAsset.
type IssuanceResult struct {
	Issuance *core.Issuance
	Asset    *core.Asset
}

// IssuanceListResult is returned by issuance queries.
type IssuanceListResult struct {
	Issuances []core.Issuance
}

// OperationResult is returned by ledger mutations with the resulting balances.
type OperationResult struct {
	Operation *core.StockOperation
	Balances  []StockQuantityResult
}

// StockQuantityResult is one balance.
type StockQuantityResult struct {
	ProductID  int
	LocationID int
	Quantity   int
}

// StockLevelsResult is returned by GetLowStock.
type StockLevelsResult struct {
	Levels []core.StockLevel
}

// OperationListResult is returned by ListOperations.
type OperationListResult struct {
	Operations []core.StockOperation
}

// WriteOffResult is returned by write-off operations.
type WriteOffResult struct {
	WriteOff *core.WriteOff
}

// WriteOffListResult is returned by ListWriteOffs.
type WriteOffListResult struct {
	WriteOffs []core.WriteOff
	FromDate  string
	ToDate    string
}

// ReconcileResult is returned by ReconcileBalances. An empty Drifts means the
// journal and balances agree.
type ReconcileResult struct {
	Drifts []core.BalanceDrift
}
