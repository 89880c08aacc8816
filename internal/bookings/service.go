// Package bookings manages reservations: pending, confirmed, then completed
// by payment or cancelled. Confirming claims the table; cancelling a confirmed
// booking releases it.
package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/inventory"
	"cafehub/internal/lock"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
	"cafehub/internal/notify"
	"cafehub/internal/tables"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type Service struct {
	db        *gorm.DB
	locks     *lock.Keyed
	publisher notify.Publisher
	metrics   *monitoring.Collector
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, locks *lock.Keyed, publisher notify.Publisher, metrics *monitoring.Collector, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{
		db:        db,
		locks:     locks,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("bookings"),
		now:       time.Now,
	}
}

// CreateInput describes a new reservation.
type CreateInput struct {
	CustomerID *uint            `json:"customer_id"`
	TableID    *uint            `json:"table_id"`
	Guests     int              `json:"guests" binding:"required"`
	Date       string           `json:"date" binding:"required"`
	Time       string           `json:"time" binding:"required"`
	Items      []inventory.Line `json:"items"`
	Deposit    decimal.Decimal  `json:"deposit"`
	Notes      string           `json:"notes"`
}

func (in CreateInput) validate() error {
	if in.Guests <= 0 {
		return apperr.Validation("guests must be positive")
	}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return apperr.Validation("date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(timeLayout, in.Time); err != nil {
		return apperr.Validation("time must be HH:MM")
	}
	if in.Deposit.IsNegative() {
		return apperr.Validation("deposit cannot be negative")
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return apperr.Validation("item quantity must be positive")
		}
	}
	return nil
}

// Filter narrows List.
type Filter struct {
	Status     models.BookingStatus
	Date       string
	TableID    uint
	CustomerID uint
}

// Create records a pending booking. A table, when given, must exist and not
// already hold a pending or confirmed booking on the same date.
func (s *Service) Create(in CreateInput, actor models.Actor) (*models.Booking, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCustomer {
		in.CustomerID = &actor.UserID
	}

	if in.TableID != nil {
		unlock := s.locks.Lock(lock.TableKey(*in.TableID))
		defer unlock()
	}

	var booking models.Booking
	err := database.WithTx(s.db, func(tx *gorm.DB) error {
		if in.TableID != nil {
			if _, err := tables.Load(tx, *in.TableID); err != nil {
				return err
			}
			var clashes int
			err := tx.Model(&models.Booking{}).
				Where("table_id = ? AND date = ? AND status IN (?)", *in.TableID, in.Date,
					[]models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}).
				Count(&clashes).Error
			if err != nil {
				return apperr.Internal(err, "failed to check booking clashes")
			}
			if clashes > 0 {
				return apperr.Newf(apperr.KindConflict, "table %d is already booked on %s", *in.TableID, in.Date)
			}
		}

		items, total, err := snapshot(tx, in.Items)
		if err != nil {
			return err
		}
		if total.IsPositive() && in.Deposit.GreaterThan(total) {
			return apperr.Validation("deposit %s exceeds total %s", in.Deposit, total)
		}

		booking = models.Booking{
			Code:       uuid.New().String(),
			CustomerID: in.CustomerID,
			TableID:    in.TableID,
			Guests:     in.Guests,
			Date:       in.Date,
			Time:       in.Time,
			Items:      items,
			Total:      total,
			Deposit:    in.Deposit,
			Status:     models.BookingStatusPending,
			Notes:      strings.TrimSpace(in.Notes),
			CreatedBy:  actor.Label(),
		}
		if err := tx.Create(&booking).Error; err != nil {
			return apperr.Internal(err, "failed to create booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(models.BookingStatusPending))
	s.logger.Info("booking created", zap.Uint("booking_id", booking.ID), zap.String("code", booking.Code))
	s.publish(&booking, actor, models.NotificationBookingCreated, notify.AudienceAll,
		"Booking created", fmt.Sprintf("Booking %s for %d guests on %s at %s was created", short(booking.Code), booking.Guests, booking.Date, booking.Time))
	return &booking, nil
}

// QuickBook records a walk-in booking that is confirmed immediately and
// claims the table. It is rejected when the table already has a confirmed
// booking. Completion still happens through payment.
func (s *Service) QuickBook(tableID uint, guests int, actor models.Actor) (*models.Booking, error) {
	if guests <= 0 {
		return nil, apperr.Validation("guests must be positive")
	}

	unlock := s.locks.Lock(lock.TableKey(tableID))
	defer unlock()

	now := s.now()
	var booking models.Booking
	err := database.WithTx(s.db, func(tx *gorm.DB) error {
		if _, err := tables.Load(tx, tableID); err != nil {
			return err
		}
		if existing, err := confirmedForTable(tx, tableID); err != nil {
			return err
		} else if existing != nil {
			return apperr.Newf(apperr.KindConflict, "table %d already has confirmed booking %d", tableID, existing.ID)
		}

		booking = models.Booking{
			Code:        uuid.New().String(),
			TableID:     &tableID,
			Guests:      guests,
			Date:        now.Format(dateLayout),
			Time:        now.Format(timeLayout),
			Items:       []models.BookingItem{},
			Total:       decimal.Zero,
			Deposit:     decimal.Zero,
			Status:      models.BookingStatusConfirmed,
			Quick:       true,
			CreatedBy:   actor.Label(),
			ConfirmedBy: actor.Label(),
			ConfirmedAt: &now,
		}
		if err := tx.Create(&booking).Error; err != nil {
			return apperr.Internal(err, "failed to create booking")
		}
		return tables.Occupy(tx, tableID, tables.Audit{
			PerformedBy: actor.Label(),
			BookingID:   &booking.ID,
			Note:        "walk-in",
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(models.BookingStatusConfirmed))
	s.logger.Info("walk-in booking confirmed", zap.Uint("booking_id", booking.ID), zap.Uint("table_id", tableID))
	s.publish(&booking, actor, models.NotificationBookingConfirmed, notify.AudienceStaff,
		"Walk-in seated", fmt.Sprintf("Walk-in booking %s for %d guests", short(booking.Code), guests))
	return &booking, nil
}

// Confirm moves a pending booking to confirmed and occupies its table. A
// table holds at most one confirmed booking, so a second one is a Conflict.
func (s *Service) Confirm(id uint, actor models.Actor) (*models.Booking, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	unlock := s.lockBooking(current)
	defer unlock()

	now := s.now()
	var booking *models.Booking
	err = database.WithTx(s.db, func(tx *gorm.DB) error {
		b, err := load(tx, id)
		if err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending {
			return apperr.InvalidTransition("booking %d is %s, only pending bookings can be confirmed", id, b.Status)
		}
		if b.TableID == nil {
			return apperr.PreconditionFailed("booking %d has no table assigned", id)
		}
		if existing, err := confirmedForTable(tx, *b.TableID); err != nil {
			return err
		} else if existing != nil {
			return apperr.Newf(apperr.KindConflict, "table %d already has confirmed booking %d", *b.TableID, existing.ID)
		}

		err = tx.Model(&models.Booking{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":       models.BookingStatusConfirmed,
			"confirmed_by": actor.Label(),
			"confirmed_at": now,
		}).Error
		if err != nil {
			return apperr.Internal(err, "failed to confirm booking")
		}
		if err := tables.Occupy(tx, *b.TableID, tables.Audit{PerformedBy: actor.Label(), BookingID: &b.ID}); err != nil {
			return err
		}
		booking, err = load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(models.BookingStatusConfirmed))
	s.logger.Info("booking confirmed", zap.Uint("booking_id", id), zap.String("actor", actor.Label()))
	s.publish(booking, actor, models.NotificationBookingConfirmed, notify.AudienceAll,
		"Booking confirmed", fmt.Sprintf("Booking %s on %s at %s is confirmed", short(booking.Code), booking.Date, booking.Time))
	return booking, nil
}

// Cancel moves a pending or confirmed booking to cancelled. A confirmed
// booking frees its table; a pending one leaves table status untouched.
// Customers may only cancel their own bookings.
func (s *Service) Cancel(id uint, reason string, actor models.Actor) (*models.Booking, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && (current.CustomerID == nil || *current.CustomerID != actor.UserID) {
		return nil, apperr.NotFound("booking %d not found", id)
	}
	unlock := s.lockBooking(current)
	defer unlock()

	now := s.now()
	var booking *models.Booking
	err = database.WithTx(s.db, func(tx *gorm.DB) error {
		b, err := load(tx, id)
		if err != nil {
			return err
		}
		if !b.Status.CanTransition(models.BookingStatusCancelled) {
			return apperr.InvalidTransition("booking %d is already %s", id, b.Status)
		}

		err = tx.Model(&models.Booking{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":        models.BookingStatusCancelled,
			"cancelled_at":  now,
			"cancel_reason": strings.TrimSpace(reason),
		}).Error
		if err != nil {
			return apperr.Internal(err, "failed to cancel booking")
		}

		if b.Status == models.BookingStatusConfirmed && b.TableID != nil {
			err := tables.Free(tx, *b.TableID, tables.Audit{
				PerformedBy: actor.Label(),
				BookingID:   &b.ID,
				Note:        "booking cancelled",
			})
			if err != nil {
				return err
			}
		}
		booking, err = load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(models.BookingStatusCancelled))
	s.logger.Info("booking cancelled", zap.Uint("booking_id", id), zap.String("reason", reason))
	msg := fmt.Sprintf("Booking %s on %s was cancelled", short(booking.Code), booking.Date)
	if booking.CancelReason != "" {
		msg += ": " + booking.CancelReason
	}
	audience := notify.AudienceCustomer
	if !actor.IsStaff() {
		audience = notify.AudienceStaff
	}
	s.publish(booking, actor, models.NotificationBookingCancelled, audience, "Booking cancelled", msg)
	return booking, nil
}

// Complete marks the table's confirmed booking completed inside tx. It is
// only called by the payment flow, which holds the table lock.
func Complete(tx *gorm.DB, tableID uint, actor models.Actor, at time.Time) (*models.Booking, error) {
	b, err := confirmedForTable(tx, tableID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.PreconditionFailed("table %d has no confirmed booking", tableID)
	}

	err = tx.Model(&models.Booking{}).Where("id = ? AND status = ?", b.ID, models.BookingStatusConfirmed).
		Updates(map[string]interface{}{
			"status":       models.BookingStatusCompleted,
			"completed_at": at,
		}).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to complete booking")
	}
	return load(tx, b.ID)
}

func confirmedForTable(tx *gorm.DB, tableID uint) (*models.Booking, error) {
	var b models.Booking
	err := tx.Where("table_id = ? AND status = ?", tableID, models.BookingStatusConfirmed).
		Order("confirmed_at DESC").Order("id DESC").First(&b).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperr.Internal(err, "failed to load confirmed booking")
	}
	return &b, nil
}

func (s *Service) Get(id uint) (*models.Booking, error) {
	return load(s.db, id)
}

// GetFor loads a booking visible to actor; customers only see their own.
func (s *Service) GetFor(id uint, actor models.Actor) (*models.Booking, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && (b.CustomerID == nil || *b.CustomerID != actor.UserID) {
		return nil, apperr.NotFound("booking %d not found", id)
	}
	return b, nil
}

// List returns bookings matching f, newest first.
func (s *Service) List(f Filter) ([]models.Booking, error) {
	q := s.db.Preload("Items")
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, apperr.Validation("unknown booking status %q", f.Status)
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.Date != "" {
		q = q.Where("date = ?", f.Date)
	}
	if f.TableID != 0 {
		q = q.Where("table_id = ?", f.TableID)
	}
	if f.CustomerID != 0 {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	var out []models.Booking
	if err := q.Order("date DESC").Order("time DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list bookings")
	}
	return out, nil
}

func load(tx *gorm.DB, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := tx.Preload("Items").First(&b, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("booking %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load booking")
	}
	return &b, nil
}

// snapshot copies menu names and prices into booking lines.
func snapshot(tx *gorm.DB, lines []inventory.Line) ([]models.BookingItem, decimal.Decimal, error) {
	items := make([]models.BookingItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		var mi models.MenuItem
		if err := tx.First(&mi, line.MenuItemID).Error; err != nil {
			if database.IsNotFound(err) {
				return nil, total, apperr.NotFound("menu item %d not found", line.MenuItemID)
			}
			return nil, total, apperr.Internal(err, "failed to load menu item")
		}
		item := models.BookingItem{MenuItemID: mi.ID, Name: mi.Name, Price: mi.Price, Quantity: line.Quantity}
		total = total.Add(mi.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, item)
	}
	return items, total, nil
}

func (s *Service) lockBooking(b *models.Booking) func() {
	keys := []string{lock.BookingKey(b.ID)}
	if b.TableID != nil {
		keys = append(keys, lock.TableKey(*b.TableID))
	}
	return s.locks.Lock(keys...)
}

func (s *Service) publish(b *models.Booking, actor models.Actor, typ models.NotificationType, audience notify.Audience, title, message string) {
	s.publisher.Publish(notify.Event{
		Type:       typ,
		Title:      title,
		Message:    message,
		CustomerID: b.CustomerID,
		BookingID:  &b.ID,
		ActorID:    actor.UserID,
		Audience:   audience,
	})
}

func short(code string) string {
	if len(code) > 8 {
		return strings.ToUpper(code[:8])
	}
	return strings.ToUpper(code)
}
