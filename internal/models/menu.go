package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MenuItem represents a drink or dish on the menu
type MenuItem struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:100;unique_index;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	Category    MenuCategory    `gorm:"size:30" json:"category"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Available   bool            `json:"available"`
	Recipe      Recipe          `gorm:"type:text" json:"recipe"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MenuCategory represents the category of a menu item
type MenuCategory string

const (
	MenuCategoryCoffee   MenuCategory = "coffee"
	MenuCategoryTea      MenuCategory = "tea"
	MenuCategoryJuice    MenuCategory = "juice"
	MenuCategorySmoothie MenuCategory = "smoothie"
	MenuCategoryPastry   MenuCategory = "pastry"
	MenuCategoryFood     MenuCategory = "food"
)

// Valid reports whether c is a known category.
func (c MenuCategory) Valid() bool {
	switch c {
	case MenuCategoryCoffee, MenuCategoryTea, MenuCategoryJuice,
		MenuCategorySmoothie, MenuCategoryPastry, MenuCategoryFood:
		return true
	}
	return false
}

// ValidateMenuItem validates a menu item
func ValidateMenuItem(item *MenuItem) error {
	if item.Name == "" {
		return fmt.Errorf("menu item name is required")
	}
	if !item.Price.IsPositive() {
		return fmt.Errorf("menu item price must be greater than 0")
	}
	if item.Category != "" && !item.Category.Valid() {
		return fmt.Errorf("unknown menu category %q", item.Category)
	}
	for i, req := range item.Recipe {
		if req.IngredientID == 0 {
			return fmt.Errorf("recipe line %d: ingredient id is required", i+1)
		}
		if req.Quantity <= 0 {
			return fmt.Errorf("recipe line %d: quantity must be positive", i+1)
		}
	}
	return nil
}

// HasIngredient checks if the item consumes a specific ingredient
func (mi *MenuItem) HasIngredient(ingredientID uint) bool {
	for _, req := range mi.Recipe {
		if req.IngredientID == ingredientID {
			return true
		}
	}
	return false
}
