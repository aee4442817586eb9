package models

import (
	"time"

	"gorm.io/datatypes"
)

// ServiceType is a catalog entry for a service the store sells. Names are unique.
type ServiceType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name         string   `gorm:"size:50;not null;uniqueIndex" json:"name"`
	DefaultPrice *float64 `gorm:"type:decimal(10,2)" json:"default_price,omitempty"`
	Category     string   `gorm:"size:50;index" json:"category,omitempty"`
}

func (ServiceType) TableName() string { return "service_types" }

// Product is a retail item. StockQuantity only moves by signed deltas, each
// recorded as an InventoryLog.
type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string   `gorm:"size:100;not null;index" json:"name"`
	Category  string   `gorm:"size:50" json:"category,omitempty"`
	UnitPrice *float64 `gorm:"type:decimal(10,2)" json:"unit_price,omitempty"`

	StockQuantity     int `gorm:"not null;default:0" json:"stock_quantity"`
	LowStockThreshold int `gorm:"not null;default:10" json:"low_stock_threshold"`

	ExtraData datatypes.JSONMap `json:"extra_data,omitempty"`
}

func (Product) TableName() string { return "products" }

// IsLowStock reports whether stock has reached the reorder threshold.
func (p *Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// InventoryChange classifies a stock movement.
type InventoryChange string

const (
	InventorySale       InventoryChange = "sale"
	InventoryRestock    InventoryChange = "restock"
	InventoryAdjustment InventoryChange = "adjustment"
)

// InventoryLog is an append-only record of one stock movement.
type InventoryLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ProductID uint     `gorm:"not null;index" json:"product_id"`
	Product   *Product `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	ChangeType     InventoryChange `gorm:"size:20;not null" json:"change_type"`
	QuantityChange int             `gorm:"not null" json:"quantity_change"`
	QuantityAfter  int             `gorm:"not null" json:"quantity_after"`
	ReferenceID    *uint           `json:"reference_id,omitempty"`
	Notes          string          `gorm:"type:text" json:"notes,omitempty"`
}

func (InventoryLog) TableName() string { return "inventory_logs" }
