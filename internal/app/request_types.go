package app

// RegisterAssetRequest is the input for registering a durable asset.
type RegisterAssetRequest struct {
	ProductID       int
	SerialNumber    string // empty means none
	InventoryNumber string
	LocationID      int // zero means no initial location
}

// IssueAssetRequest checks an asset out to a recipient.
type IssueAssetRequest struct {
	AssetRef  string
	Recipient string
	Comment   string
}

// ReturnAssetRequest closes an issuance. Either IssuanceID or AssetRef is set;
// with AssetRef the asset's active issuance is closed.
type ReturnAssetRequest struct {
	IssuanceID int
	AssetRef   string
	LocationID int
	Comment    string
}

// CompleteMaintenanceRequest returns an asset from maintenance to a location.
type CompleteMaintenanceRequest struct {
	AssetRef   string
	LocationID int
}

// StockMovementRequest is a receipt or an expense.
type StockMovementRequest struct {
	ProductID  int
	LocationID int
	Quantity   int
	Comment    string
}

// TransferStockRequest moves a consumable between locations.
type TransferStockRequest struct {
	ProductID      int
	FromLocationID int
	ToLocationID   int
	Quantity       int
	Comment        string
}

// ListOperationsRequest filters the journal. Zero values mean no filter.
type ListOperationsRequest struct {
	ProductID int
	Type      string
	Limit     int
}

// WriteOffConsumableRequest disposes of a consumable quantity.
type WriteOffConsumableRequest struct {
	ProductID  int
	LocationID int
	Quantity   int
	Reason     string
}

// WriteOffAssetRequest disposes of a durable asset.
type WriteOffAssetRequest struct {
	AssetRef string
	Reason   string
}
