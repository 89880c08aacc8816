package database

import (
	"fmt"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"

	"cafehub/internal/models"
)

// Seed ensures demo data exists. Each collection is only seeded when empty.
func Seed(db *gorm.DB) error {
	return WithTx(db, func(tx *gorm.DB) error {
		if err := seedUsers(tx); err != nil {
			return err
		}
		if err := seedTables(tx); err != nil {
			return err
		}
		return seedCatalog(tx)
	})
}

func seedUsers(tx *gorm.DB) error {
	var count int
	tx.Model(&models.User{}).Count(&count)
	if count > 0 {
		return nil
	}

	users := []models.User{
		{Name: "Admin", Email: "admin@cafehub.local", Role: models.RoleAdmin},
		{Name: "Barista", Email: "staff@cafehub.local", Role: models.RoleStaff},
		{Name: "Guest", Email: "guest@cafehub.local", Role: models.RoleCustomer},
	}
	for i := range users {
		if err := tx.Create(&users[i]).Error; err != nil {
			return fmt.Errorf("failed to seed user %s: %w", users[i].Email, err)
		}
	}
	return nil
}

func seedTables(tx *gorm.DB) error {
	var count int
	tx.Model(&models.Table{}).Count(&count)
	if count > 0 {
		return nil
	}

	for i := 1; i <= 6; i++ {
		table := models.Table{
			Name:     fmt.Sprintf("T%d", i),
			Status:   models.TableStatusEmpty,
			Capacity: 2 + (i%3)*2,
			Location: "indoor",
			Features: models.StringSlice{},
		}
		if i > 4 {
			table.Location = "terrace"
			table.Features = models.StringSlice{"outdoor", "smoking"}
		}
		if err := tx.Create(&table).Error; err != nil {
			return fmt.Errorf("failed to seed table %s: %w", table.Name, err)
		}
	}
	return nil
}

func seedCatalog(tx *gorm.DB) error {
	var count int
	tx.Model(&models.Ingredient{}).Count(&count)
	if count > 0 {
		return nil
	}

	ingredients := map[string]*models.Ingredient{
		"milk":    {Name: "Milk", Unit: models.UnitLiter, UnitPrice: decimal.NewFromInt(32000), CurrentStock: 20, MinStock: 4, MaxStock: 40, Active: true},
		"beans":   {Name: "Coffee Beans", Unit: models.UnitKilogram, UnitPrice: decimal.NewFromInt(350000), CurrentStock: 5, MinStock: 1, MaxStock: 10, Active: true},
		"sugar":   {Name: "Sugar", Unit: models.UnitKilogram, UnitPrice: decimal.NewFromInt(25000), CurrentStock: 8, MinStock: 1, MaxStock: 15, Active: true},
		"tea":     {Name: "Tea Leaves", Unit: models.UnitKilogram, UnitPrice: decimal.NewFromInt(280000), CurrentStock: 2, MinStock: 0.5, MaxStock: 5, Active: true},
		"oranges": {Name: "Oranges", Unit: models.UnitPiece, UnitPrice: decimal.NewFromInt(8000), CurrentStock: 60, MinStock: 12, MaxStock: 120, Active: true},
	}
	for key, ing := range ingredients {
		if err := tx.Create(ing).Error; err != nil {
			return fmt.Errorf("failed to seed ingredient %s: %w", key, err)
		}
	}

	menu := []models.MenuItem{
		{
			Name: "Espresso", Category: models.MenuCategoryCoffee, Price: decimal.NewFromInt(30000), Available: true,
			Recipe: models.Recipe{{IngredientID: ingredients["beans"].ID, Quantity: 0.018, Unit: "kg"}},
		},
		{
			Name: "Latte", Category: models.MenuCategoryCoffee, Price: decimal.NewFromInt(45000), Available: true,
			Recipe: models.Recipe{
				{IngredientID: ingredients["beans"].ID, Quantity: 0.018, Unit: "kg"},
				{IngredientID: ingredients["milk"].ID, Quantity: 0.2, Unit: "l"},
			},
		},
		{
			Name: "Milk Tea", Category: models.MenuCategoryTea, Price: decimal.NewFromInt(40000), Available: true,
			Recipe: models.Recipe{
				{IngredientID: ingredients["tea"].ID, Quantity: 0.01, Unit: "kg"},
				{IngredientID: ingredients["milk"].ID, Quantity: 0.15, Unit: "l"},
				{IngredientID: ingredients["sugar"].ID, Quantity: 0.02, Unit: "kg"},
			},
		},
		{
			Name: "Orange Juice", Category: models.MenuCategoryJuice, Price: decimal.NewFromInt(35000), Available: true,
			Recipe: models.Recipe{{IngredientID: ingredients["oranges"].ID, Quantity: 3, Unit: "pc"}},
		},
		{
			Name: "Croissant", Category: models.MenuCategoryPastry, Price: decimal.NewFromInt(25000), Available: true,
			Recipe: models.Recipe{},
		},
	}
	for i := range menu {
		if err := tx.Create(&menu[i]).Error; err != nil {
			return fmt.Errorf("failed to seed menu item %s: %w", menu[i].Name, err)
		}
	}
	return nil
}
