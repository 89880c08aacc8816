package inventory

import (
	"fmt"
	"sort"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/models"
)

// MovementResult is one applied ingredient movement.
type MovementResult struct {
	MenuItemID     uint                 `json:"menu_item_id,omitempty"`
	IngredientID   uint                 `json:"ingredient_id"`
	IngredientName string               `json:"ingredient_name"`
	Quantity       float64              `json:"quantity"`
	Unit           models.InventoryUnit `json:"unit"`
	PreviousStock  float64              `json:"previous_stock"`
	NewStock       float64              `json:"new_stock"`
	TransactionID  uint                 `json:"transaction_id"`
}

// MovementError is one ingredient movement that could not be applied.
type MovementError struct {
	MenuItemID   uint    `json:"menu_item_id,omitempty"`
	IngredientID uint    `json:"ingredient_id,omitempty"`
	Reason       string  `json:"reason"`
	Needed       float64 `json:"needed,omitempty"`
	Available    float64 `json:"available,omitempty"`
	Message      string  `json:"message"`
}

// StockResult reports a multi-ingredient deduction or return.
type StockResult struct {
	Success bool             `json:"success"`
	Results []MovementResult `json:"results"`
	Errors  []MovementError  `json:"errors,omitempty"`
}

// Err converts a failed result into an InsufficientStock error carrying it.
func (r *StockResult) Err() error {
	if r.Success {
		return nil
	}
	msg := "stock movement failed"
	if len(r.Errors) > 0 {
		msg = r.Errors[0].Message
	}
	return apperr.New(apperr.KindInsufficientStock, msg).WithDetails(r)
}

// OrderReference is the ledger reference for an order's movements.
func OrderReference(orderCode string) string {
	return "order:" + orderCode
}

// DeductForOrder deducts the recipe needs of lines inside t. Every line is
// attempted so the result lists all failures; a result with Success false
// means the caller must roll the transaction back.
func (t *StockTx) DeductForOrder(lines []Line, reference string, tableID uint, actor string) (*StockResult, error) {
	result := &StockResult{Success: true}

	for _, line := range lines {
		var item models.MenuItem
		if err := t.tx.First(&item, line.MenuItemID).Error; err != nil {
			if database.IsNotFound(err) {
				result.fail(MovementError{MenuItemID: line.MenuItemID, Reason: ReasonNotFound,
					Message: fmt.Sprintf("menu item %d not found", line.MenuItemID)})
				continue
			}
			return nil, apperr.Internal(err, "failed to load menu item")
		}

		for _, req := range item.Recipe {
			var ing models.Ingredient
			if err := t.tx.First(&ing, req.IngredientID).Error; err != nil {
				if database.IsNotFound(err) {
					result.fail(MovementError{MenuItemID: item.ID, IngredientID: req.IngredientID, Reason: ReasonNotFound,
						Message: fmt.Sprintf("ingredient %d not found", req.IngredientID)})
					continue
				}
				return nil, apperr.Internal(err, "failed to load ingredient")
			}
			if !ing.Active {
				result.fail(MovementError{MenuItemID: item.ID, IngredientID: ing.ID, Reason: ReasonNotFound,
					Message: fmt.Sprintf("ingredient %s is inactive", ing.Name)})
				continue
			}

			needed, ok := convert(req.Quantity*float64(line.Quantity), models.InventoryUnit(req.Unit), ing.Unit)
			if !ok {
				result.fail(MovementError{MenuItemID: item.ID, IngredientID: ing.ID, Reason: ReasonUnitMismatch,
					Message: fmt.Sprintf("recipe unit %s does not match %s for %s", req.Unit, ing.Unit, ing.Name)})
				continue
			}
			needed = round(needed)
			if ing.CurrentStock < needed {
				result.fail(MovementError{MenuItemID: item.ID, IngredientID: ing.ID, Reason: ReasonInsufficient,
					Needed: needed, Available: ing.CurrentStock,
					Message: fmt.Sprintf("insufficient %s: need %g %s, have %g", ing.Name, needed, ing.Unit, ing.CurrentStock)})
				continue
			}
			if !result.Success {
				// already failing: keep collecting errors without writing
				continue
			}

			entry, err := t.Apply(ing.ID, -needed, Movement{
				Type:        models.TransactionExport,
				Reference:   reference,
				PerformedBy: actor,
				Notes:       fmt.Sprintf("table %d, %dx %s", tableID, line.Quantity, item.Name),
			})
			if err != nil {
				return nil, err
			}
			result.Results = append(result.Results, MovementResult{
				MenuItemID: item.ID, IngredientID: ing.ID, IngredientName: ing.Name,
				Quantity: entry.Quantity, Unit: ing.Unit,
				PreviousStock: entry.PreviousStock, NewStock: entry.NewStock, TransactionID: entry.ID,
			})
		}
	}
	return result, nil
}

// ReturnForOrder restores everything still deducted under reference. The
// amount returned per ingredient is the net of the ledger entries for that
// reference, so a later recipe edit cannot skew the round trip.
func (t *StockTx) ReturnForOrder(reference string, tableID uint, actor string) (*StockResult, error) {
	outstanding, err := outstandingFor(t.tx, reference)
	if err != nil {
		return nil, err
	}

	result := &StockResult{Success: true}
	for _, o := range outstanding {
		entry, err := t.Apply(o.ingredientID, -o.net, Movement{
			Type:        models.TransactionImport,
			Reference:   reference,
			PerformedBy: actor,
			Notes:       fmt.Sprintf("returned from table %d", tableID),
		})
		if err != nil {
			if apperr.IsNotFound(err) {
				result.fail(MovementError{IngredientID: o.ingredientID, Reason: ReasonNotFound, Message: err.Error()})
				continue
			}
			return nil, err
		}
		ing := t.applied[len(t.applied)-1].ingredient
		result.Results = append(result.Results, MovementResult{
			IngredientID: o.ingredientID, IngredientName: ing.Name, Unit: ing.Unit,
			Quantity: entry.Quantity, PreviousStock: entry.PreviousStock, NewStock: entry.NewStock, TransactionID: entry.ID,
		})
	}
	return result, nil
}

type outstanding struct {
	ingredientID uint
	net          float64
}

func outstandingFor(tx *gorm.DB, reference string) ([]outstanding, error) {
	var entries []models.StockTransaction
	if err := tx.Where("reference = ?", reference).Find(&entries).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load ledger")
	}
	nets := make(map[uint]float64)
	for _, e := range entries {
		nets[e.IngredientID] += e.Quantity
	}

	var out []outstanding
	for id, net := range nets {
		net = round(net)
		if net < 0 {
			out = append(out, outstanding{ingredientID: id, net: net})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ingredientID < out[j].ingredientID })
	return out, nil
}

// OutstandingIngredients lists ingredients with stock still deducted under reference.
func (s *Service) OutstandingIngredients(reference string) ([]uint, error) {
	out, err := outstandingFor(s.db, reference)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.ingredientID)
	}
	return ids, nil
}

func (r *StockResult) fail(e MovementError) {
	r.Success = false
	r.Errors = append(r.Errors, e)
}

// DeductForOrder runs a standalone all-or-nothing deduction: the ingredients
// are locked, the lines checked and deducted in one transaction, and nothing
// is written when any line fails.
func (s *Service) DeductForOrder(lines []Line, reference string, tableID uint, actor string) (*StockResult, error) {
	ids, err := s.IngredientsFor(lines)
	if err != nil {
		return nil, err
	}

	var result *StockResult
	var stx *StockTx
	err = s.WithLocks(nil, ids, func(held []uint) error {
		return database.WithTx(s.db, func(tx *gorm.DB) error {
			stx = s.In(tx, held)
			var err error
			if result, err = stx.DeductForOrder(lines, reference, tableID, actor); err != nil {
				return err
			}
			return result.Err()
		})
	})
	if err != nil {
		if apperr.IsInsufficientStock(err) {
			result.Results = nil
			return result, nil
		}
		return nil, err
	}
	stx.Committed()
	s.logger.Info("stock deducted", zap.String("reference", reference), zap.Int("movements", len(result.Results)))
	return result, nil
}

// ReturnForOrder restores the stock deducted under reference in one transaction.
func (s *Service) ReturnForOrder(reference string, tableID uint, actor string) (*StockResult, error) {
	ids, err := s.OutstandingIngredients(reference)
	if err != nil {
		return nil, err
	}

	var result *StockResult
	var stx *StockTx
	err = s.WithLocks(nil, ids, func(held []uint) error {
		return database.WithTx(s.db, func(tx *gorm.DB) error {
			stx = s.In(tx, held)
			var err error
			result, err = stx.ReturnForOrder(reference, tableID, actor)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	stx.Committed()
	s.logger.Info("stock returned", zap.String("reference", reference), zap.Int("movements", len(result.Results)))
	return result, nil
}
