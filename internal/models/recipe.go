package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringSlice represents a slice of strings that can be stored in the database
type StringSlice []string

// Value converts the slice to a JSON string for storage
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan converts the database value back to a slice
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for StringSlice")
	}
}

// IngredientRequirement is the amount of one ingredient consumed by a single
// unit of a menu item.
type IngredientRequirement struct {
	IngredientID uint    `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// Recipe is the ingredient list of a menu item, stored as JSON text.
type Recipe []IngredientRequirement

// Value converts the recipe to a JSON string for storage
func (r Recipe) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan converts the database value back to a recipe
func (r *Recipe) Scan(value interface{}) error {
	if value == nil {
		*r = Recipe{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return errors.New("unsupported type for Recipe")
	}
}
