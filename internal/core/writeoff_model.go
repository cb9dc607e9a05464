package core

import (
	"fmt"
	"time"
)

// WriteOffPayload is either a ConsumableWriteOff or an AssetWriteOff.
type WriteOffPayload interface {
	isWriteOffPayload()
}

// ConsumableWriteOff disposes of a quantity of a consumable. StockOperationID
// links the EXPENSE journal row that debited the balance.
type ConsumableWriteOff struct {
	ProductID        int `json:"product_id"`
	Quantity         int `json:"quantity"`
	StockOperationID int `json:"stock_operation_id"`
}

// AssetWriteOff disposes of one durable asset.
type AssetWriteOff struct {
	AssetID int `json:"asset_id"`
}

func (ConsumableWriteOff) isWriteOffPayload() {}
func (AssetWriteOff) isWriteOffPayload()      {}

// WriteOff is an immutable disposal record. LocationID is nil only for an
// asset that had no current location.
type WriteOff struct {
	ID         int             `json:"id"`
	Payload    WriteOffPayload `json:"payload"`
	LocationID *int            `json:"location_id,omitempty"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// payloadFromColumns rebuilds the variant from the nullable write_offs columns.
func payloadFromColumns(productID, quantity, stockOperationID, assetID *int) (WriteOffPayload, error) {
	switch {
	case productID != nil && assetID == nil:
		if quantity == nil {
			return nil, fmt.Errorf("consumable write-off without quantity")
		}
		p := ConsumableWriteOff{ProductID: *productID, Quantity: *quantity}
		if stockOperationID != nil {
			p.StockOperationID = *stockOperationID
		}
		return p, nil
	case assetID != nil && productID == nil:
		return AssetWriteOff{AssetID: *assetID}, nil
	default:
		return nil, fmt.Errorf("write-off must reference exactly one of product or asset")
	}
}
