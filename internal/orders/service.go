// Package orders runs the per-table order lifecycle: no order, pending, paid.
// Every mutation holds the table lock plus the locks of every ingredient it
// touches, and writes the order, its stock movements and the table status in
// one transaction.
package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/bookings"
	"cafehub/internal/database"
	"cafehub/internal/inventory"
	"cafehub/internal/lock"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
	"cafehub/internal/notify"
	"cafehub/internal/tables"
)

// Outcomes recorded in cafe_orders_total.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeReplaced  = "replaced"
	OutcomeCancelled = "cancelled"
	OutcomePaid      = "paid"
	OutcomePayDenied = "pay_denied"
)

type Service struct {
	db        *gorm.DB
	locks     *lock.Keyed
	stock     *inventory.Service
	publisher notify.Publisher
	metrics   *monitoring.Collector
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(db *gorm.DB, locks *lock.Keyed, stock *inventory.Service, publisher notify.Publisher, metrics *monitoring.Collector, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{
		db:        db,
		locks:     locks,
		stock:     stock,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("orders"),
		now:       time.Now,
	}
}

// AddItems adds lines to the table's pending order, creating it when the
// table has none. The whole call is rejected when any line is unavailable.
func (s *Service) AddItems(tableID uint, lines []inventory.Line, actor models.Actor) (*models.Order, error) {
	lines, err := normalize(lines)
	if err != nil {
		return nil, err
	}

	ingredientIDs, err := s.stock.IngredientsFor(lines)
	if err != nil {
		return nil, err
	}
	var order *models.Order
	var stx *inventory.StockTx
	err = s.stock.WithLocks(tableKeys(tableID), ingredientIDs, func(held []uint) error {
		return database.WithTx(s.db, func(tx *gorm.DB) error {
			stx = s.stock.In(tx, held)
			table, err := tables.Load(tx, tableID)
			if err != nil {
				return err
			}
			if err := checkAvailable(stx, lines); err != nil {
				return err
			}

			current, err := pendingFor(tx, tableID)
			if err != nil {
				return err
			}
			if current == nil {
				if current, err = s.open(tx, tableID, actor); err != nil {
					return err
				}
			}

			if err := mergeItems(tx, current, lines); err != nil {
				return err
			}
			result, err := stx.DeductForOrder(lines, inventory.OrderReference(current.Code), tableID, actor.Label())
			if err != nil {
				return err
			}
			if err := result.Err(); err != nil {
				return err
			}

			if table.Status != models.TableStatusOccupied {
				err := tables.Occupy(tx, tableID, tables.Audit{PerformedBy: actor.Label(), OrderID: &current.ID, Note: "order opened"})
				if err != nil {
					return err
				}
			}

			order, err = s.refreshTotal(tx, current.ID)
			return err
		})
	})
	if err != nil {
		s.reject(tableID, err)
		return nil, err
	}

	stx.Committed()
	s.metrics.OrderOutcome(OutcomeAccepted)
	s.logger.Info("order items added",
		zap.Uint("table_id", tableID),
		zap.Uint("order_id", order.ID),
		zap.Int("lines", len(lines)),
		zap.String("total", order.Total.String()))
	return order, nil
}

// ReplaceItems swaps the pending order's lines wholesale: stock deducted for
// the old lines is returned, then the new lines are checked and deducted.
// Without a pending order it behaves like AddItems.
func (s *Service) ReplaceItems(tableID uint, lines []inventory.Line, actor models.Actor) (*models.Order, error) {
	lines, err := normalize(lines)
	if err != nil {
		return nil, err
	}

	existing, err := pendingFor(s.db, tableID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.AddItems(tableID, lines, actor)
	}
	ref := inventory.OrderReference(existing.Code)

	ingredientIDs, err := s.stock.IngredientsFor(lines)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.stock.OutstandingIngredients(ref)
	if err != nil {
		return nil, err
	}
	var order *models.Order
	var stx *inventory.StockTx
	err = s.stock.WithLocks(tableKeys(tableID), append(ingredientIDs, outstanding...), func(held []uint) error {
		return database.WithTx(s.db, func(tx *gorm.DB) error {
			stx = s.stock.In(tx, held)
			current, err := pendingFor(tx, tableID)
			if err != nil {
				return err
			}
			if current == nil || current.Code != existing.Code {
				return apperr.New(apperr.KindConflict, "order changed concurrently, retry")
			}

			if _, err := stx.ReturnForOrder(ref, tableID, actor.Label()); err != nil {
				return err
			}
			if err := checkAvailable(stx, lines); err != nil {
				return err
			}

			if err := tx.Unscoped().Where("order_id = ?", current.ID).Delete(&models.OrderItem{}).Error; err != nil {
				return apperr.Internal(err, "failed to clear order items")
			}
			current.Items = nil
			if err := mergeItems(tx, current, lines); err != nil {
				return err
			}
			result, err := stx.DeductForOrder(lines, ref, tableID, actor.Label())
			if err != nil {
				return err
			}
			if err := result.Err(); err != nil {
				return err
			}

			order, err = s.refreshTotal(tx, current.ID)
			return err
		})
	})
	if err != nil {
		s.reject(tableID, err)
		return nil, err
	}

	stx.Committed()
	s.metrics.OrderOutcome(OutcomeReplaced)
	s.logger.Info("order items replaced", zap.Uint("table_id", tableID), zap.Uint("order_id", order.ID))
	return order, nil
}

// Cancel returns the pending order's stock, deletes the order and frees the table.
func (s *Service) Cancel(tableID uint, actor models.Actor) (*inventory.StockResult, error) {
	existing, err := pendingFor(s.db, tableID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound("table %d has no pending order", tableID)
	}
	ref := inventory.OrderReference(existing.Code)
	outstanding, err := s.stock.OutstandingIngredients(ref)
	if err != nil {
		return nil, err
	}
	var result *inventory.StockResult
	var stx *inventory.StockTx
	err = s.stock.WithLocks(tableKeys(tableID), outstanding, func(held []uint) error {
		return database.WithTx(s.db, func(tx *gorm.DB) error {
			stx = s.stock.In(tx, held)
			current, err := pendingFor(tx, tableID)
			if err != nil {
				return err
			}
			if current == nil || current.Code != existing.Code {
				return apperr.New(apperr.KindConflict, "order changed concurrently, retry")
			}

			if result, err = stx.ReturnForOrder(ref, tableID, actor.Label()); err != nil {
				return err
			}
			if err := result.Err(); err != nil {
				return err
			}

			if err := deleteOrder(tx, current.ID); err != nil {
				return err
			}
			return tables.Free(tx, tableID, tables.Audit{PerformedBy: actor.Label(), OrderID: &current.ID, Note: "order cancelled"})
		})
	})
	if err != nil {
		return nil, err
	}

	stx.Committed()
	s.metrics.OrderOutcome(OutcomeCancelled)
	s.logger.Info("order cancelled", zap.Uint("table_id", tableID), zap.Uint("order_id", existing.ID))
	return result, nil
}

// Pay settles the table's pending order. The table must have a confirmed
// booking; otherwise nothing changes and PreconditionFailed is returned. On
// success the order is paid, the booking completed and the table freed.
func (s *Service) Pay(tableID uint, actor models.Actor) (*models.Order, error) {
	unlock := s.locks.Lock(lock.TableKey(tableID))
	defer unlock()

	now := s.now()
	var order *models.Order
	var booking *models.Booking
	err := database.WithTx(s.db, func(tx *gorm.DB) error {
		current, err := pendingFor(tx, tableID)
		if err != nil {
			return err
		}
		if current == nil {
			if _, err := tables.Load(tx, tableID); err != nil {
				return err
			}
			return apperr.NotFound("table %d has no pending order", tableID)
		}

		if booking, err = bookings.Complete(tx, tableID, actor, now); err != nil {
			return err
		}

		err = tx.Model(&models.Order{}).Where("id = ?", current.ID).Updates(map[string]interface{}{
			"status":          models.OrderStatusPaid,
			"active_table_id": nil,
			"paid_by":         actor.Label(),
			"paid_at":         now,
		}).Error
		if err != nil {
			return apperr.Internal(err, "failed to mark order paid")
		}

		err = tables.Free(tx, tableID, tables.Audit{
			PerformedBy: actor.Label(),
			BookingID:   &booking.ID,
			OrderID:     &current.ID,
			Amount:      current.Total,
			Note:        "paid",
		})
		if err != nil {
			return err
		}

		order, err = loadOrder(tx, current.ID)
		return err
	})
	if err != nil {
		if apperr.IsPreconditionFailed(err) {
			s.metrics.OrderOutcome(OutcomePayDenied)
			s.logger.Warn("payment refused", zap.Uint("table_id", tableID), zap.Error(err))
		}
		return nil, err
	}

	s.metrics.OrderOutcome(OutcomePaid)
	s.metrics.BookingTransition(string(models.BookingStatusCompleted))
	s.logger.Info("order paid",
		zap.Uint("table_id", tableID),
		zap.Uint("order_id", order.ID),
		zap.Uint("booking_id", booking.ID),
		zap.String("total", order.Total.String()))

	s.publisher.Publish(notify.Event{
		Type:       models.NotificationPaymentCompleted,
		Title:      "Payment completed",
		Message:    fmt.Sprintf("Order %s paid: %s", order.Code[:8], order.Total.StringFixed(0)),
		CustomerID: booking.CustomerID,
		BookingID:  &booking.ID,
		ActorID:    actor.UserID,
		Audience:   notify.AudienceAll,
	})
	s.publisher.Publish(notify.Event{
		Type:       models.NotificationBookingCompleted,
		Title:      "Booking completed",
		Message:    fmt.Sprintf("Thanks for visiting! Booking on %s is completed", booking.Date),
		CustomerID: booking.CustomerID,
		BookingID:  &booking.ID,
		ActorID:    actor.UserID,
		Audience:   notify.AudienceCustomer,
	})
	return order, nil
}

// Active returns the table's pending order.
func (s *Service) Active(tableID uint) (*models.Order, error) {
	if _, err := tables.Load(s.db, tableID); err != nil {
		return nil, err
	}
	order, err := pendingFor(s.db, tableID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("table %d has no pending order", tableID)
	}
	return order, nil
}

func (s *Service) Get(id uint) (*models.Order, error) {
	return loadOrder(s.db, id)
}

// List returns orders, newest first, optionally filtered by table and status.
func (s *Service) List(tableID uint, status models.OrderStatus) ([]models.Order, error) {
	q := s.db.Preload("Items")
	if tableID != 0 {
		q = q.Where("table_id = ?", tableID)
	}
	if status != "" {
		if !status.Valid() {
			return nil, apperr.Validation("unknown order status %q", status)
		}
		q = q.Where("status = ?", status)
	}
	var out []models.Order
	if err := q.Order("id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list orders")
	}
	return out, nil
}

func tableKeys(tableID uint) []string {
	return []string{lock.TableKey(tableID)}
}

func (s *Service) reject(tableID uint, err error) {
	if apperr.IsInsufficientStock(err) || apperr.IsNotFound(err) {
		s.metrics.OrderOutcome(OutcomeRejected)
		s.logger.Info("order rejected", zap.Uint("table_id", tableID), zap.Error(err))
	}
}

// open inserts a pending order for the table. The unique index on
// active_table_id turns a concurrent second open into a Conflict.
func (s *Service) open(tx *gorm.DB, tableID uint, actor models.Actor) (*models.Order, error) {
	active := tableID
	order := models.Order{
		Code:          uuid.New().String(),
		TableID:       tableID,
		ActiveTableID: &active,
		Status:        models.OrderStatusPending,
		Total:         decimal.Zero,
		CreatedBy:     actor.Label(),
	}
	if err := tx.Create(&order).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "table %d already has a pending order", tableID)
		}
		return nil, apperr.Internal(err, "failed to create order")
	}
	return &order, nil
}

func (s *Service) refreshTotal(tx *gorm.DB, orderID uint) (*models.Order, error) {
	order, err := loadOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	total := models.OrderTotal(order.Items)
	if err := tx.Model(&models.Order{}).Where("id = ?", orderID).Update("total", total).Error; err != nil {
		return nil, apperr.Internal(err, "failed to update order total")
	}
	order.Total = total
	return order, nil
}

func checkAvailable(stx *inventory.StockTx, lines []inventory.Line) error {
	report, err := stx.CheckLines(lines)
	if err != nil {
		return err
	}
	if report.Available {
		return nil
	}
	for _, l := range report.Lines {
		if l.Reason == inventory.ReasonNotFound {
			return apperr.NotFound("menu item %d not found", l.MenuItemID).WithDetails(report)
		}
		if l.Reason == inventory.ReasonUnavailable {
			return apperr.New(apperr.KindInsufficientStock, fmt.Sprintf("menu item %d is not available", l.MenuItemID)).WithDetails(report)
		}
	}
	return apperr.New(apperr.KindInsufficientStock, "insufficient stock for order").WithDetails(report)
}

// mergeItems adds lines to the order, bumping quantities of menu items it
// already holds. New lines snapshot the menu name and price.
func mergeItems(tx *gorm.DB, order *models.Order, lines []inventory.Line) error {
	for _, line := range lines {
		merged := false
		for i := range order.Items {
			item := &order.Items[i]
			if item.MenuItemID != line.MenuItemID {
				continue
			}
			item.Quantity += line.Quantity
			if err := tx.Model(&models.OrderItem{}).Where("id = ?", item.ID).Update("quantity", item.Quantity).Error; err != nil {
				return apperr.Internal(err, "failed to update order item")
			}
			merged = true
			break
		}
		if merged {
			continue
		}

		var mi models.MenuItem
		if err := tx.First(&mi, line.MenuItemID).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("menu item %d not found", line.MenuItemID)
			}
			return apperr.Internal(err, "failed to load menu item")
		}
		item := models.OrderItem{
			OrderID:    order.ID,
			MenuItemID: mi.ID,
			Name:       mi.Name,
			Price:      mi.Price,
			Quantity:   line.Quantity,
		}
		if err := tx.Create(&item).Error; err != nil {
			return apperr.Internal(err, "failed to add order item")
		}
		order.Items = append(order.Items, item)
	}
	return nil
}

func pendingFor(tx *gorm.DB, tableID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items").Where("active_table_id = ?", tableID).First(&order).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperr.Internal(err, "failed to load pending order")
	}
	return &order, nil
}

func loadOrder(tx *gorm.DB, id uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Preload("Items").First(&order, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("order %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load order")
	}
	return &order, nil
}

func deleteOrder(tx *gorm.DB, id uint) error {
	if err := tx.Unscoped().Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
		return apperr.Internal(err, "failed to delete order items")
	}
	if err := tx.Unscoped().Where("id = ?", id).Delete(&models.Order{}).Error; err != nil {
		return apperr.Internal(err, "failed to delete order")
	}
	return nil
}

// normalize validates lines and folds repeated menu items into one line.
func normalize(lines []inventory.Line) ([]inventory.Line, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	index := make(map[uint]int, len(lines))
	out := make([]inventory.Line, 0, len(lines))
	for _, l := range lines {
		if l.MenuItemID == 0 {
			return nil, apperr.Validation("menu item id is required")
		}
		if l.Quantity <= 0 {
			return nil, apperr.Validation("quantity for menu item %d must be positive", l.MenuItemID)
		}
		if i, ok := index[l.MenuItemID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.MenuItemID] = len(out)
		out = append(out, l)
	}
	return out, nil
}
