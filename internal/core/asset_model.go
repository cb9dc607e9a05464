package core

import (
	"strings"
	"time"
)

// AssetStatus is the lifecycle state of a durable asset.
type AssetStatus string

const (
	StatusInStock     AssetStatus = "IN_STOCK"
	StatusIssued      AssetStatus = "ISSUED"
	StatusMaintenance AssetStatus = "MAINTENANCE"
	StatusWrittenOff  AssetStatus = "WRITTEN_OFF"
)

// Valid reports whether s is one of the canonical statuses.
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusInStock, StatusIssued, StatusMaintenance, StatusWrittenOff:
		return true
	}
	return false
}

// Asset is an individually identified durable item.
type Asset struct {
	ID                int         `json:"id"`
	ProductID         int         `json:"product_id"`
	SerialNumber      *string     `json:"serial_number,omitempty"`
	InventoryNumber   string      `json:"inventory_number"`
	Status            AssetStatus `json:"status"`
	CurrentLocationID *int        `json:"current_location_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// IsAvailable reports whether the asset can be issued.
func (a *Asset) IsAvailable() bool {
	return a.Status == StatusInStock
}

// validateRegistration checks a new asset before it is inserted.
func validateRegistration(p *Product, inventoryNumber string) error {
	if err := requireDurable(p, "asset registration"); err != nil {
		return err
	}
	if strings.TrimSpace(inventoryNumber) == "" {
		return validationErrorf("inventory number is required")
	}
	return nil
}
