package app

import (
	"context"
)

// ApplicationService is the single interface presentation adapters call.
// Implementations contain no display logic. Asset references are inventory
// numbers; an all-digit reference that matches no inventory number is taken
// as an asset ID.
type ApplicationService interface {
	// RegisterAsset creates a durable asset in IN_STOCK.
	RegisterAsset(ctx context.Context, req RegisterAssetRequest) (*AssetResult, error)

	// GetAsset returns one asset with its issuance history.
	GetAsset(ctx context.Context, ref string) (*AssetResult, error)

	// IssueAsset checks an IN_STOCK asset out to a recipient.
	IssueAsset(ctx context.Context, req IssueAssetRequest) (*IssuanceResult, error)

	// ReturnAsset closes an issuance and puts the asset back in stock at a location.
	ReturnAsset(ctx context.Context, req ReturnAssetRequest) (*IssuanceResult, error)

	// SendToMaintenance moves an IN_STOCK asset to MAINTENANCE.
	SendToMaintenance(ctx context.Context, ref string) (*AssetResult, error)

	// CompleteMaintenance puts an asset back in stock at a location.
	CompleteMaintenance(ctx context.Context, req CompleteMaintenanceRequest) (*AssetResult, error)

	// ListActiveIssuances returns every issuance without a return date.
	ListActiveIssuances(ctx context.Context) (*IssuanceListResult, error)

	// FindIssuancesByRecipient matches recipients case-insensitively by substring.
	FindIssuancesByRecipient(ctx context.Context, query string) (*IssuanceListResult, error)

	// ReceiveStock, ExpendStock and TransferStock are the consumable ledger operations.
	ReceiveStock(ctx context.Context, req StockMovementRequest) (*OperationResult, error)
	ExpendStock(ctx context.Context, req StockMovementRequest) (*OperationResult, error)
	TransferStock(ctx context.Context, req TransferStockRequest) (*OperationResult, error)

	// GetStock returns the balance of one product at one location (0 if none).
	GetStock(ctx context.Context, productID, locationID int) (*StockQuantityResult, error)

	// GetLowStock returns balances below their product minimum.
	GetLowStock(ctx context.Context) (*StockLevelsResult, error)

	// ListOperations returns journal entries, newest first.
	ListOperations(ctx context.Context, req ListOperationsRequest) (*OperationListResult, error)

	// WriteOffConsumable disposes of a quantity of a consumable at a location.
	WriteOffConsumable(ctx context.Context, req WriteOffConsumableRequest) (*WriteOffResult, error)

	// WriteOffAsset disposes of a durable asset, closing any open issuance.
	WriteOffAsset(ctx context.Context, req WriteOffAssetRequest) (*WriteOffResult, error)

	// ListWriteOffs returns write-offs between two dates (YYYY-MM-DD, both inclusive).
	ListWriteOffs(ctx context.Context, fromDate, toDate string) (*WriteOffListResult, error)

	// ReconcileBalances recomputes every balance from the journal and reports drift.
	ReconcileBalances(ctx context.Context) (*ReconcileResult, error)
}
