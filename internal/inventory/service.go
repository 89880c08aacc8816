// Package inventory owns ingredient stock: the append-only stock ledger, the
// availability checker and the stock mutator used by orders.
package inventory

import (
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/lock"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
	"cafehub/internal/notify"
)

// Service manages ingredients and their stock.
type Service struct {
	db        *gorm.DB
	locks     *lock.Keyed
	publisher notify.Publisher
	metrics   *monitoring.Collector
	logger    *zap.Logger
}

// NewService wires the inventory service. locks must be shared with every
// other service that mutates stock.
func NewService(db *gorm.DB, locks *lock.Keyed, publisher notify.Publisher, metrics *monitoring.Collector, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{
		db:        db,
		locks:     locks,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.Named("inventory"),
	}
}

// IngredientInput carries the editable fields of an ingredient.
type IngredientInput struct {
	Name         string               `json:"name" binding:"required"`
	Unit         models.InventoryUnit `json:"unit" binding:"required"`
	UnitPrice    decimal.Decimal      `json:"unit_price"`
	InitialStock float64              `json:"initial_stock"`
	MinStock     float64              `json:"min_stock"`
	MaxStock     float64              `json:"max_stock"`
}

func (in IngredientInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("ingredient name is required")
	}
	if !in.Unit.Valid() {
		return apperr.Validation("unknown unit %q", in.Unit)
	}
	if in.UnitPrice.IsNegative() {
		return apperr.Validation("unit price cannot be negative")
	}
	if in.InitialStock < 0 || in.MinStock < 0 || in.MaxStock < 0 {
		return apperr.Validation("stock values cannot be negative")
	}
	if in.MaxStock > 0 && in.MinStock > in.MaxStock {
		return apperr.Validation("min stock cannot exceed max stock")
	}
	return nil
}

// CreateIngredient adds an ingredient with its opening stock.
func (s *Service) CreateIngredient(in IngredientInput) (*models.Ingredient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	ing := models.Ingredient{
		Name:         strings.TrimSpace(in.Name),
		Unit:         in.Unit,
		UnitPrice:    in.UnitPrice,
		CurrentStock: round(in.InitialStock),
		MinStock:     in.MinStock,
		MaxStock:     in.MaxStock,
		Active:       true,
	}
	if err := s.db.Create(&ing).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "ingredient %q already exists", ing.Name)
		}
		return nil, apperr.Internal(err, "failed to create ingredient")
	}

	s.logger.Info("ingredient created", zap.Uint("ingredient_id", ing.ID), zap.String("name", ing.Name))
	return &ing, nil
}

// UpdateIngredient changes catalog fields. Stock is never touched here.
func (s *Service) UpdateIngredient(id uint, in IngredientInput) (*models.Ingredient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ing, err := s.GetIngredient(id)
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.Ingredient{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":       strings.TrimSpace(in.Name),
		"unit":       in.Unit,
		"unit_price": in.UnitPrice,
		"min_stock":  in.MinStock,
		"max_stock":  in.MaxStock,
	}).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "ingredient %q already exists", in.Name)
		}
		return nil, apperr.Internal(err, "failed to update ingredient")
	}
	return s.GetIngredient(ing.ID)
}

// GetIngredient loads one ingredient.
func (s *Service) GetIngredient(id uint) (*models.Ingredient, error) {
	var ing models.Ingredient
	if err := s.db.First(&ing, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("ingredient %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load ingredient")
	}
	return &ing, nil
}

// ListIngredients returns ingredients ordered by name.
func (s *Service) ListIngredients(includeInactive bool) ([]models.Ingredient, error) {
	q := s.db.Order("name")
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	var out []models.Ingredient
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list ingredients")
	}
	return out, nil
}

// LowStock lists active ingredients at or below their minimum.
func (s *Service) LowStock() ([]models.Ingredient, error) {
	var out []models.Ingredient
	err := s.db.Where("active = ? AND min_stock > 0 AND current_stock <= min_stock", true).
		Order("name").Find(&out).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to list low stock")
	}
	return out, nil
}

// DeleteIngredient removes an ingredient. One with ledger history is only
// deactivated; one still used by a recipe cannot be removed.
func (s *Service) DeleteIngredient(id uint) (deactivated bool, err error) {
	unlock := s.locks.Lock(lock.IngredientKey(id))
	defer unlock()

	err = database.WithTx(s.db, func(tx *gorm.DB) error {
		var ing models.Ingredient
		if err := tx.First(&ing, id).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.NotFound("ingredient %d not found", id)
			}
			return apperr.Internal(err, "failed to load ingredient")
		}

		var history int
		if err := tx.Model(&models.StockTransaction{}).Where("ingredient_id = ?", id).Count(&history).Error; err != nil {
			return apperr.Internal(err, "failed to count ledger entries")
		}
		if history > 0 {
			deactivated = true
			return tx.Model(&models.Ingredient{}).Where("id = ?", id).Update("active", false).Error
		}

		var menu []models.MenuItem
		if err := tx.Find(&menu).Error; err != nil {
			return apperr.Internal(err, "failed to load menu")
		}
		for _, item := range menu {
			if item.HasIngredient(id) {
				return apperr.Newf(apperr.KindConflict, "ingredient %d is used by menu item %q", id, item.Name)
			}
		}
		return tx.Delete(&ing).Error
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("ingredient removed", zap.Uint("ingredient_id", id), zap.Bool("deactivated", deactivated))
	return deactivated, nil
}

// History returns the ledger of one ingredient, newest first. limit <= 0 returns everything.
func (s *Service) History(ingredientID uint, limit int) ([]models.StockTransaction, error) {
	if _, err := s.GetIngredient(ingredientID); err != nil {
		return nil, err
	}
	q := s.db.Where("ingredient_id = ?", ingredientID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.StockTransaction
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load ledger")
	}
	return out, nil
}

// Entries returns every ledger entry with the given reference, oldest first.
func (s *Service) Entries(reference string) ([]models.StockTransaction, error) {
	var out []models.StockTransaction
	if err := s.db.Where("reference = ?", reference).Order("id").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load ledger")
	}
	return out, nil
}
