package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Table represents a seating table in the café
type Table struct {
	ID        uint        `gorm:"primary_key" json:"id"`
	Name      string      `gorm:"size:50;unique_index;not null" json:"name"`
	Status    TableStatus `gorm:"size:20;not null" json:"status"`
	Capacity  int         `json:"capacity"`
	Location  string      `gorm:"size:50" json:"location,omitempty"`
	Features  StringSlice `gorm:"type:text" json:"features"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableHistory is the audit trail of occupancy changes.
type TableHistory struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	TableID     uint            `gorm:"index;not null" json:"table_id"`
	Action      TableAction     `gorm:"size:20;not null" json:"action"`
	PerformedBy string          `gorm:"size:100" json:"performed_by"`
	BookingID   *uint           `json:"booking_id,omitempty"`
	OrderID     *uint           `json:"order_id,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2)" json:"amount"`
	Note        string          `gorm:"size:255" json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableStatus is the single occupancy flag shared by orders and bookings.
type TableStatus string

const (
	TableStatusEmpty    TableStatus = "empty"
	TableStatusOccupied TableStatus = "occupied"
)

// Valid reports whether s is a known table status.
func (s TableStatus) Valid() bool {
	return s == TableStatusEmpty || s == TableStatusOccupied
}

// TableAction is the kind of a table history entry.
type TableAction string

const (
	TableActionOccupied TableAction = "occupied"
	TableActionFreed    TableAction = "freed"
)
