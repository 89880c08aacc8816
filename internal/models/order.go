package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the running tab of a table. ActiveTableID mirrors TableID while the
// order is pending and is cleared on payment; its unique index guarantees at most
// one pending order per table.
type Order struct {
	ID            uint            `gorm:"primary_key" json:"id"`
	Code          string          `gorm:"size:36;unique_index;not null" json:"code"`
	TableID       uint            `gorm:"index;not null" json:"table_id"`
	ActiveTableID *uint           `gorm:"unique_index" json:"-"`
	Status        OrderStatus     `gorm:"size:20;not null" json:"status"`
	Items         []OrderItem     `gorm:"foreignkey:OrderID" json:"items"`
	Total         decimal.Decimal `gorm:"type:decimal(14,2)" json:"total"`
	CreatedBy     string          `gorm:"size:100" json:"created_by"`
	PaidBy        string          `gorm:"size:100" json:"paid_by,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderItem is a line of an order with name and price captured at order time.
type OrderItem struct {
	ID         uint            `gorm:"primary_key" json:"id"`
	OrderID    uint            `gorm:"index;not null" json:"order_id"`
	MenuItemID uint            `gorm:"not null" json:"menu_item_id"`
	Name       string          `gorm:"size:100" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Quantity   int             `gorm:"not null" json:"quantity"`
}

// Subtotal returns price × quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCompleted:
		return true
	}
	return false
}

// OrderTotal sums the subtotals of items.
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
