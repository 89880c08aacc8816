package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient is a stocked raw material. CurrentStock is only changed through the
// stock ledger so every change has a matching StockTransaction.
type Ingredient struct {
	ID           uint            `gorm:"primary_key" json:"id"`
	Name         string          `gorm:"size:100;unique_index;not null" json:"name"`
	Unit         InventoryUnit   `gorm:"size:20;not null" json:"unit"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	CurrentStock float64         `gorm:"not null" json:"current_stock"`
	MinStock     float64         `json:"min_stock"`
	MaxStock     float64         `json:"max_stock"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsLow reports whether the stock is at or below the minimum threshold.
func (i *Ingredient) IsLow() bool {
	return i.MinStock > 0 && i.CurrentStock <= i.MinStock
}

// StockTransaction is an immutable ledger entry. Quantity is the applied signed
// delta, so NewStock == PreviousStock + Quantity always holds.
type StockTransaction struct {
	ID                uint            `gorm:"primary_key" json:"id"`
	IngredientID      uint            `gorm:"index;not null" json:"ingredient_id"`
	Type              TransactionType `gorm:"size:20;not null" json:"type"`
	Quantity          float64         `gorm:"not null" json:"quantity"`
	RequestedQuantity float64         `json:"requested_quantity"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	TotalValue        decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_value"`
	PreviousStock     float64         `json:"previous_stock"`
	NewStock          float64         `json:"new_stock"`
	Reference         string          `gorm:"size:100;index" json:"reference"`
	PerformedBy       string          `gorm:"size:100" json:"performed_by"`
	Reason            string          `gorm:"size:255" json:"reason,omitempty"`
	Notes             string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TransactionType is the kind of a stock movement.
type TransactionType string

const (
	TransactionImport     TransactionType = "import"
	TransactionExport     TransactionType = "export"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionWaste      TransactionType = "waste"
	TransactionDamage     TransactionType = "damage"
	TransactionTransfer   TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionImport, TransactionExport, TransactionAdjustment,
		TransactionWaste, TransactionDamage, TransactionTransfer:
		return true
	}
	return false
}

// InventoryUnit represents the unit of measurement for an ingredient
type InventoryUnit string

const (
	// Weight units
	UnitGram     InventoryUnit = "g"
	UnitKilogram InventoryUnit = "kg"

	// Volume units
	UnitMilliliter InventoryUnit = "ml"
	UnitLiter      InventoryUnit = "l"

	// Count units
	UnitPiece InventoryUnit = "pc"
	UnitBox   InventoryUnit = "box"
	UnitPack  InventoryUnit = "pack"
)

// Valid reports whether u is a supported unit.
func (u InventoryUnit) Valid() bool {
	switch u {
	case UnitGram, UnitKilogram, UnitMilliliter, UnitLiter, UnitPiece, UnitBox, UnitPack:
		return true
	}
	return false
}
