// Package tables is the single writer of table occupancy. Orders and bookings
// call Occupy and Free inside their own transactions.
package tables

import (
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/lock"
	"cafehub/internal/models"
)

// Audit describes who changed a table's status and why.
type Audit struct {
	PerformedBy string
	BookingID   *uint
	OrderID     *uint
	Amount      decimal.Decimal
	Note        string
}

type Service struct {
	db     *gorm.DB
	locks  *lock.Keyed
	logger *zap.Logger
}

func NewService(db *gorm.DB, locks *lock.Keyed, logger *zap.Logger) *Service {
	return &Service{db: db, locks: locks, logger: logger.Named("tables")}
}

// Load fetches a table through tx.
func Load(tx *gorm.DB, id uint) (*models.Table, error) {
	var table models.Table
	if err := tx.First(&table, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("table %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load table")
	}
	return &table, nil
}

// Occupy marks the table occupied and records the change. It accepts any
// current status; callers enforce their own guards.
func Occupy(tx *gorm.DB, tableID uint, audit Audit) error {
	return setStatus(tx, tableID, models.TableStatusOccupied, models.TableActionOccupied, audit)
}

// Free marks the table empty, records the change and purges any pending
// order still attached to it. Paid orders are kept as history. Stock deducted
// for a purged order stays deducted; callers that want it back return it
// before freeing, as order cancellation does.
func Free(tx *gorm.DB, tableID uint, audit Audit) error {
	if err := setStatus(tx, tableID, models.TableStatusEmpty, models.TableActionFreed, audit); err != nil {
		return err
	}

	var pending []models.Order
	if err := tx.Where("active_table_id = ?", tableID).Find(&pending).Error; err != nil {
		return apperr.Internal(err, "failed to load pending orders")
	}
	for _, o := range pending {
		if err := tx.Unscoped().Where("order_id = ?", o.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return apperr.Internal(err, "failed to purge order items")
		}
		if err := tx.Unscoped().Where("id = ?", o.ID).Delete(&models.Order{}).Error; err != nil {
			return apperr.Internal(err, "failed to purge order")
		}
	}
	return nil
}

func setStatus(tx *gorm.DB, tableID uint, status models.TableStatus, action models.TableAction, audit Audit) error {
	res := tx.Model(&models.Table{}).Where("id = ?", tableID).Update("status", status)
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to update table status")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("table %d not found", tableID)
	}

	entry := models.TableHistory{
		TableID:     tableID,
		Action:      action,
		PerformedBy: audit.PerformedBy,
		BookingID:   audit.BookingID,
		OrderID:     audit.OrderID,
		Amount:      audit.Amount,
		Note:        audit.Note,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return apperr.Internal(err, "failed to record table history")
	}
	return nil
}

// TableInput carries the editable fields of a table.
type TableInput struct {
	Name     string   `json:"name" binding:"required"`
	Capacity int      `json:"capacity"`
	Location string   `json:"location"`
	Features []string `json:"features"`
}

func (in TableInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("table name is required")
	}
	if in.Capacity < 0 {
		return apperr.Validation("capacity cannot be negative")
	}
	return nil
}

func (s *Service) Create(in TableInput) (*models.Table, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	table := models.Table{
		Name:     strings.TrimSpace(in.Name),
		Status:   models.TableStatusEmpty,
		Capacity: in.Capacity,
		Location: in.Location,
		Features: models.StringSlice(in.Features),
	}
	if err := s.db.Create(&table).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "table %q already exists", table.Name)
		}
		return nil, apperr.Internal(err, "failed to create table")
	}
	s.logger.Info("table created", zap.Uint("table_id", table.ID), zap.String("name", table.Name))
	return &table, nil
}

// Update changes the table's descriptive fields; status is left alone.
func (s *Service) Update(id uint, in TableInput) (*models.Table, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	err := s.db.Model(&models.Table{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":     strings.TrimSpace(in.Name),
		"capacity": in.Capacity,
		"location": in.Location,
		"features": models.StringSlice(in.Features),
	}).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "table %q already exists", in.Name)
		}
		return nil, apperr.Internal(err, "failed to update table")
	}
	return s.Get(id)
}

func (s *Service) Get(id uint) (*models.Table, error) {
	return Load(s.db, id)
}

// List returns tables ordered by name, optionally filtered by status.
func (s *Service) List(status models.TableStatus) ([]models.Table, error) {
	q := s.db.Order("name")
	if status != "" {
		if !status.Valid() {
			return nil, apperr.Validation("unknown table status %q", status)
		}
		q = q.Where("status = ?", status)
	}
	var out []models.Table
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list tables")
	}
	return out, nil
}

// History lists a table's status changes, newest first.
func (s *Service) History(tableID uint) ([]models.TableHistory, error) {
	if _, err := s.Get(tableID); err != nil {
		return nil, err
	}
	var out []models.TableHistory
	if err := s.db.Where("table_id = ?", tableID).Order("id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load table history")
	}
	return out, nil
}

// Reset is the staff override that frees a table regardless of its state.
// A pending order is dropped with its stock left deducted, since the food
// was usually already made.
func (s *Service) Reset(tableID uint, actor, note string) (*models.Table, error) {
	unlock := s.locks.Lock(lock.TableKey(tableID))
	defer unlock()

	err := database.WithTx(s.db, func(tx *gorm.DB) error {
		return Free(tx, tableID, Audit{PerformedBy: actor, Note: note})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("table reset", zap.Uint("table_id", tableID), zap.String("actor", actor))
	return s.Get(tableID)
}
