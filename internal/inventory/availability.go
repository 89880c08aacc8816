package inventory

import (
	"sort"

	"github.com/jinzhu/gorm"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/models"
)

// Shortfall reasons.
const (
	ReasonNotFound     = "not_found"
	ReasonInsufficient = "insufficient"
	ReasonUnitMismatch = "unit_mismatch"
	ReasonUnavailable  = "unavailable"
)

// Line is one menu item and quantity in an order or booking.
type Line struct {
	MenuItemID uint `json:"menu_item_id" binding:"required"`
	Quantity   int  `json:"quantity" binding:"required,gt=0"`
}

// Shortfall describes one ingredient that cannot cover the request.
type Shortfall struct {
	IngredientID uint                 `json:"ingredient_id"`
	Name         string               `json:"name,omitempty"`
	Needed       float64              `json:"needed"`
	Available    float64              `json:"available"`
	Unit         models.InventoryUnit `json:"unit,omitempty"`
	Reason       string               `json:"reason"`
}

// AvailabilityReport is the result of checking one menu item.
type AvailabilityReport struct {
	MenuItemID uint        `json:"menu_item_id"`
	Quantity   int         `json:"quantity"`
	Available  bool        `json:"available"`
	Reason     string      `json:"reason,omitempty"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

// OrderReport checks several lines together. Shortfalls are computed on the
// summed need per ingredient, so two lines sharing an ingredient are checked
// against the same stock.
type OrderReport struct {
	Available  bool                 `json:"available"`
	Lines      []AvailabilityReport `json:"lines"`
	Shortfalls []Shortfall          `json:"shortfalls,omitempty"`
}

// CheckAvailability reports whether qty units of a menu item can be made from
// current stock. A missing menu item is reported as unavailable, not as an error.
func (s *Service) CheckAvailability(menuItemID uint, qty int) (*AvailabilityReport, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive")
	}
	return checkLine(s.db, Line{MenuItemID: menuItemID, Quantity: qty})
}

// CheckLines checks lines against current stock.
func (s *Service) CheckLines(lines []Line) (*OrderReport, error) {
	return checkLines(s.db, lines)
}

type need struct {
	ingredientID uint
	unit         models.InventoryUnit
	qty          float64
}

func checkLine(db *gorm.DB, line Line) (*AvailabilityReport, error) {
	report := &AvailabilityReport{MenuItemID: line.MenuItemID, Quantity: line.Quantity, Available: true}

	var item models.MenuItem
	if err := db.First(&item, line.MenuItemID).Error; err != nil {
		if database.IsNotFound(err) {
			report.Available = false
			report.Reason = ReasonNotFound
			return report, nil
		}
		return nil, apperr.Internal(err, "failed to load menu item")
	}
	if !item.Available {
		report.Available = false
		report.Reason = ReasonUnavailable
		return report, nil
	}

	needs := make([]need, 0, len(item.Recipe))
	for _, req := range item.Recipe {
		needs = append(needs, need{
			ingredientID: req.IngredientID,
			unit:         models.InventoryUnit(req.Unit),
			qty:          req.Quantity * float64(line.Quantity),
		})
	}

	shortfalls, err := compare(db, needs)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 {
		report.Available = false
		report.Reason = ReasonInsufficient
		report.Shortfalls = shortfalls
	}
	return report, nil
}

func checkLines(db *gorm.DB, lines []Line) (*OrderReport, error) {
	report := &OrderReport{Available: true}
	var all []need

	for _, line := range lines {
		lr, err := checkLine(db, line)
		if err != nil {
			return nil, err
		}
		report.Lines = append(report.Lines, *lr)
		if !lr.Available {
			report.Available = false
		}
		if lr.Reason == ReasonNotFound || lr.Reason == ReasonUnavailable {
			continue
		}

		var item models.MenuItem
		if err := db.First(&item, line.MenuItemID).Error; err != nil {
			return nil, apperr.Internal(err, "failed to load menu item")
		}
		for _, req := range item.Recipe {
			all = append(all, need{
				ingredientID: req.IngredientID,
				unit:         models.InventoryUnit(req.Unit),
				qty:          req.Quantity * float64(line.Quantity),
			})
		}
	}

	shortfalls, err := compare(db, all)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 {
		report.Available = false
		report.Shortfalls = shortfalls
	}
	return report, nil
}

// compare sums needs per ingredient and returns the ones stock cannot cover.
func compare(db *gorm.DB, needs []need) ([]Shortfall, error) {
	if len(needs) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(needs))
	for _, n := range needs {
		ids = append(ids, n.ingredientID)
	}

	var ingredients []models.Ingredient
	if err := db.Where("id IN (?)", ids).Find(&ingredients).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load ingredients")
	}
	byID := make(map[uint]models.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}

	totals := make(map[uint]float64)
	var order []uint
	var shortfalls []Shortfall
	mismatched := make(map[uint]bool)

	for _, n := range needs {
		ing, ok := byID[n.ingredientID]
		if !ok || !ing.Active {
			if _, seen := totals[n.ingredientID]; !seen {
				order = append(order, n.ingredientID)
			}
			totals[n.ingredientID] += n.qty
			continue
		}
		qty, ok := convert(n.qty, n.unit, ing.Unit)
		if !ok {
			if !mismatched[ing.ID] {
				mismatched[ing.ID] = true
				shortfalls = append(shortfalls, Shortfall{
					IngredientID: ing.ID, Name: ing.Name, Needed: n.qty,
					Available: ing.CurrentStock, Unit: ing.Unit, Reason: ReasonUnitMismatch,
				})
			}
			continue
		}
		if _, seen := totals[ing.ID]; !seen {
			order = append(order, ing.ID)
		}
		totals[ing.ID] += qty
	}

	for _, id := range order {
		if mismatched[id] {
			continue
		}
		needed := round(totals[id])
		ing, ok := byID[id]
		if !ok || !ing.Active {
			shortfalls = append(shortfalls, Shortfall{IngredientID: id, Needed: needed, Reason: ReasonNotFound})
			continue
		}
		if ing.CurrentStock < needed {
			shortfalls = append(shortfalls, Shortfall{
				IngredientID: id, Name: ing.Name, Needed: needed,
				Available: ing.CurrentStock, Unit: ing.Unit, Reason: ReasonInsufficient,
			})
		}
	}

	sort.SliceStable(shortfalls, func(i, j int) bool { return shortfalls[i].IngredientID < shortfalls[j].IngredientID })
	return shortfalls, nil
}

// IngredientsFor returns the ingredient ids used by the lines' recipes, for
// lock acquisition before a check-then-deduct sequence.
func (s *Service) IngredientsFor(lines []Line) ([]uint, error) {
	menuIDs := make([]uint, 0, len(lines))
	for _, l := range lines {
		menuIDs = append(menuIDs, l.MenuItemID)
	}
	if len(menuIDs) == 0 {
		return nil, nil
	}

	var items []models.MenuItem
	if err := s.db.Where("id IN (?)", menuIDs).Find(&items).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load menu items")
	}

	seen := make(map[uint]struct{})
	var ids []uint
	for _, item := range items {
		for _, req := range item.Recipe {
			if _, ok := seen[req.IngredientID]; ok {
				continue
			}
			seen[req.IngredientID] = struct{}{}
			ids = append(ids, req.IngredientID)
		}
	}
	return ids, nil
}

// CheckLines checks lines against the stock visible inside the transaction,
// including movements already applied in it.
func (t *StockTx) CheckLines(lines []Line) (*OrderReport, error) {
	return checkLines(t.tx, lines)
}
