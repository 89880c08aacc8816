// Package menu manages the menu catalog read by orders and bookings.
package menu

import (
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/models"
)

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger.Named("menu")}
}

// ItemInput carries the editable fields of a menu item.
type ItemInput struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Category    models.MenuCategory `json:"category"`
	Price       decimal.Decimal     `json:"price"`
	Available   *bool               `json:"available"`
	Recipe      models.Recipe       `json:"recipe"`
}

func (in ItemInput) toModel() models.MenuItem {
	item := models.MenuItem{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		Available:   true,
		Recipe:      in.Recipe,
	}
	if in.Available != nil {
		item.Available = *in.Available
	}
	if item.Recipe == nil {
		item.Recipe = models.Recipe{}
	}
	return item
}

// checkRecipe verifies every recipe ingredient exists and is active.
func (s *Service) checkRecipe(recipe models.Recipe) error {
	for _, req := range recipe {
		var ing models.Ingredient
		if err := s.db.First(&ing, req.IngredientID).Error; err != nil {
			if database.IsNotFound(err) {
				return apperr.Validation("recipe ingredient %d does not exist", req.IngredientID)
			}
			return apperr.Internal(err, "failed to load ingredient")
		}
		if !ing.Active {
			return apperr.Validation("recipe ingredient %s is inactive", ing.Name)
		}
	}
	return nil
}

func (s *Service) Create(in ItemInput) (*models.MenuItem, error) {
	item := in.toModel()
	if err := models.ValidateMenuItem(&item); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid menu item")
	}
	if err := s.checkRecipe(item.Recipe); err != nil {
		return nil, err
	}

	if err := s.db.Create(&item).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "menu item %q already exists", item.Name)
		}
		return nil, apperr.Internal(err, "failed to create menu item")
	}

	s.logger.Info("menu item created", zap.Uint("menu_item_id", item.ID), zap.String("name", item.Name))
	return &item, nil
}

// Update replaces the item's fields. Orders keep their own price and name snapshots.
func (s *Service) Update(id uint, in ItemInput) (*models.MenuItem, error) {
	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	item := in.toModel()
	if in.Available == nil {
		item.Available = current.Available
	}
	if err := models.ValidateMenuItem(&item); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "invalid menu item")
	}
	if err := s.checkRecipe(item.Recipe); err != nil {
		return nil, err
	}

	err = s.db.Model(&models.MenuItem{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":        item.Name,
		"description": item.Description,
		"category":    item.Category,
		"price":       item.Price,
		"available":   item.Available,
		"recipe":      item.Recipe,
	}).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Newf(apperr.KindConflict, "menu item %q already exists", item.Name)
		}
		return nil, apperr.Internal(err, "failed to update menu item")
	}
	return s.Get(id)
}

// SetAvailability toggles whether the item can be ordered.
func (s *Service) SetAvailability(id uint, available bool) (*models.MenuItem, error) {
	res := s.db.Model(&models.MenuItem{}).Where("id = ?", id).Update("available", available)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "failed to update menu item")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("menu item %d not found", id)
	}
	return s.Get(id)
}

func (s *Service) Get(id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := s.db.First(&item, id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("menu item %d not found", id)
		}
		return nil, apperr.Internal(err, "failed to load menu item")
	}
	return &item, nil
}

// List returns menu items, optionally filtered by category and availability.
func (s *Service) List(category models.MenuCategory, availableOnly bool) ([]models.MenuItem, error) {
	q := s.db.Order("category").Order("name")
	if category != "" {
		if !category.Valid() {
			return nil, apperr.Validation("unknown menu category %q", category)
		}
		q = q.Where("category = ?", category)
	}
	if availableOnly {
		q = q.Where("available = ?", true)
	}
	var out []models.MenuItem
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list menu")
	}
	return out, nil
}
