package models

import "time"

// User is a customer or staff member. IDs are the subjects of issued tokens.
type User struct {
	ID        uint      `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:150;unique_index;not null" json:"email"`
	Role      Role      `gorm:"size:20;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Role represents the access role of a user
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// IsStaff reports whether the role can operate the café.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Notification is an informational message delivered to one user.
type Notification struct {
	ID        uint             `gorm:"primary_key" json:"id"`
	UserID    uint             `gorm:"index;not null" json:"user_id"`
	Type      NotificationType `gorm:"size:30;not null" json:"type"`
	Title     string           `gorm:"size:150" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	BookingID *uint            `json:"booking_id,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationType tags booking, payment and stock events
type NotificationType string

const (
	NotificationBookingCreated   NotificationType = "booking_created"
	NotificationBookingConfirmed NotificationType = "booking_confirmed"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationBookingCompleted NotificationType = "booking_completed"
	NotificationPaymentCompleted NotificationType = "payment_completed"
	NotificationLowStock         NotificationType = "low_stock"
)
