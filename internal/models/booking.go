package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking is a table reservation with an optional pre-ordered item list.
type Booking struct {
	ID           uint            `gorm:"primary_key" json:"id"`
	Code         string          `gorm:"size:36;unique_index;not null" json:"code"`
	CustomerID   *uint           `gorm:"index" json:"customer_id,omitempty"`
	TableID      *uint           `gorm:"index" json:"table_id,omitempty"`
	Guests       int             `gorm:"not null" json:"guests"`
	Date         string          `gorm:"size:10;index;not null" json:"date"`
	Time         string          `gorm:"size:5;not null" json:"time"`
	Items        []BookingItem   `gorm:"foreignkey:BookingID" json:"items"`
	Total        decimal.Decimal `gorm:"type:decimal(14,2)" json:"total"`
	Deposit      decimal.Decimal `gorm:"type:decimal(14,2)" json:"deposit"`
	Status       BookingStatus   `gorm:"size:20;index;not null" json:"status"`
	Quick        bool            `json:"quick"`
	Notes        string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	ConfirmedBy  string          `gorm:"size:100" json:"confirmed_by,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason string          `gorm:"size:255" json:"cancel_reason,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BookingItem is a pre-ordered menu item with its price captured at booking time.
type BookingItem struct {
	ID         uint            `gorm:"primary_key" json:"id"`
	BookingID  uint            `gorm:"index;not null" json:"booking_id"`
	MenuItemID uint            `gorm:"not null" json:"menu_item_id"`
	Name       string          `gorm:"size:100" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Quantity   int             `gorm:"not null" json:"quantity"`
}

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// CanTransition reports whether a booking may move from s to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsTable reports whether a booking in status s claims its table on its date.
func (s BookingStatus) HoldsTable() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}
