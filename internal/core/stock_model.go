package core

import "time"

// OperationType is the kind of a journal entry.
type OperationType string

const (
	OperationReceipt  OperationType = "RECEIPT"
	OperationExpense  OperationType = "EXPENSE"
	OperationTransfer OperationType = "TRANSFER"
)

func (t OperationType) Valid() bool {
	switch t {
	case OperationReceipt, OperationExpense, OperationTransfer:
		return true
	}
	return false
}

// StockOperation is one immutable journal entry.
type StockOperation struct {
	ID             int           `json:"id"`
	ProductID      int           `json:"product_id"`
	AssetID        *int          `json:"asset_id,omitempty"`
	Type           OperationType `json:"operation_type"`
	Quantity       int           `json:"quantity"`
	FromLocationID *int          `json:"from_location_id,omitempty"`
	ToLocationID   *int          `json:"to_location_id,omitempty"`
	Comment        string        `json:"comment"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Stock is the balance of one consumable product at one location.
type Stock struct {
	ID         int       `json:"id"`
	ProductID  int       `json:"product_id"`
	LocationID int       `json:"location_id"`
	Quantity   int       `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StockLevel is a balance joined with the product threshold and names, as
// delivered to observers and low-stock reports.
type StockLevel struct {
	ProductID    int    `json:"product_id"`
	ProductName  string `json:"product_name"`
	SKU          string `json:"sku"`
	Unit         string `json:"unit"`
	LocationID   int    `json:"location_id"`
	LocationName string `json:"location_name"`
	Quantity     int    `json:"quantity"`
	MinStock     int    `json:"min_stock"`
}

// IsLow reports whether the balance is strictly below the product's minimum.
func (l StockLevel) IsLow() bool {
	return l.Quantity < l.MinStock
}

func newStockLevel(p *Product, l *Location, quantity int) StockLevel {
	return StockLevel{
		ProductID:    p.ID,
		ProductName:  p.Name,
		SKU:          p.SKU,
		Unit:         p.Unit,
		LocationID:   l.ID,
		LocationName: l.Name,
		Quantity:     quantity,
		MinStock:     p.MinStock,
	}
}

// OperationFilter narrows ListOperations. Zero values mean no filter.
type OperationFilter struct {
	ProductID int
	Type      OperationType
	Limit     int
}

func validateQuantity(qty int) error {
	if qty <= 0 {
		return validationErrorf("quantity must be positive, got %d", qty)
	}
	return nil
}
