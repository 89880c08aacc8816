package inventory

import (
	"fmt"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/lock"
	"cafehub/internal/models"
	"cafehub/internal/notify"
)

// Movement is the metadata recorded with a stock change.
type Movement struct {
	Type        models.TransactionType
	Reference   string
	PerformedBy string
	Reason      string
	Notes       string
}

type applied struct {
	entry      models.StockTransaction
	ingredient models.Ingredient
}

// StockTx applies stock movements inside a caller's database transaction.
// Call Committed once the transaction commits so metrics and low-stock alerts
// only reflect durable changes.
type StockTx struct {
	svc     *Service
	tx      *gorm.DB
	held    map[uint]struct{}
	applied []applied
}

// In binds stock operations to tx. held lists the ingredients whose locks the
// caller holds; Apply refuses to write any other ingredient.
func (s *Service) In(tx *gorm.DB, held []uint) *StockTx {
	t := &StockTx{svc: s, tx: tx, held: make(map[uint]struct{}, len(held))}
	for _, id := range held {
		t.held[id] = struct{}{}
	}
	return t
}

// Apply adds delta to the ingredient's stock, clamping at zero, and appends
// the ledger entry. The entry's Quantity is the delta actually applied.
func (t *StockTx) Apply(ingredientID uint, delta float64, m Movement) (*models.StockTransaction, error) {
	if !m.Type.Valid() {
		return nil, apperr.Validation("unknown transaction type %q", m.Type)
	}
	if _, ok := t.held[ingredientID]; !ok {
		return nil, &UnlockedError{IngredientID: ingredientID}
	}

	var ing models.Ingredient
	if err := t.tx.First(&ing, ingredientID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.NotFound("ingredient %d not found", ingredientID)
		}
		return nil, apperr.Internal(err, "failed to load ingredient")
	}

	previous := ing.CurrentStock
	next := round(previous + delta)
	if next < 0 {
		next = 0
	}
	change := round(next - previous)

	err := t.tx.Model(&models.Ingredient{}).Where("id = ?", ing.ID).
		Update("current_stock", next).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to update stock")
	}

	entry := models.StockTransaction{
		IngredientID:      ing.ID,
		Type:              m.Type,
		Quantity:          change,
		RequestedQuantity: round(delta),
		UnitPrice:         ing.UnitPrice,
		TotalValue:        ing.UnitPrice.Mul(decimal.NewFromFloat(change).Abs()).Round(2),
		PreviousStock:     previous,
		NewStock:          next,
		Reference:         m.Reference,
		PerformedBy:       m.PerformedBy,
		Reason:            m.Reason,
		Notes:             m.Notes,
	}
	if err := t.tx.Create(&entry).Error; err != nil {
		return nil, apperr.Internal(err, "failed to append ledger entry")
	}

	ing.CurrentStock = next
	t.applied = append(t.applied, applied{entry: entry, ingredient: ing})
	return &entry, nil
}

// Committed records metrics and publishes low-stock alerts for ingredients
// whose stock crossed their minimum.
func (t *StockTx) Committed() {
	for _, a := range t.applied {
		t.svc.metrics.StockMovement(string(a.entry.Type), a.ingredient.Name, a.entry.NewStock)

		ing := a.ingredient
		if ing.MinStock > 0 && a.entry.PreviousStock > ing.MinStock && a.entry.NewStock <= ing.MinStock {
			t.svc.logger.Warn("ingredient below minimum stock",
				zap.Uint("ingredient_id", ing.ID),
				zap.String("ingredient", ing.Name),
				zap.Float64("stock", a.entry.NewStock),
				zap.Float64("min_stock", ing.MinStock))
			t.svc.publisher.Publish(notify.Event{
				Type:     models.NotificationLowStock,
				Title:    "Low stock",
				Message:  fmt.Sprintf("%s is down to %g %s (minimum %g)", ing.Name, a.entry.NewStock, ing.Unit, ing.MinStock),
				Audience: notify.AudienceStaff,
			})
		}
	}
	t.applied = nil
}

// Apply is the standalone Stock Mutator: it locks the ingredient and runs the
// update and ledger append in one transaction.
func (s *Service) Apply(ingredientID uint, delta float64, m Movement) (*models.StockTransaction, error) {
	unlock := s.locks.Lock(lock.IngredientKey(ingredientID))
	defer unlock()

	var entry *models.StockTransaction
	stx := s.In(nil, []uint{ingredientID})
	err := database.WithTx(s.db, func(tx *gorm.DB) error {
		stx.tx = tx
		var err error
		entry, err = stx.Apply(ingredientID, delta, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	stx.Committed()

	s.logger.Info("stock movement applied",
		zap.Uint("ingredient_id", ingredientID),
		zap.String("type", string(m.Type)),
		zap.Float64("quantity", entry.Quantity),
		zap.Float64("new_stock", entry.NewStock))
	return entry, nil
}

// Receive records a delivery. A non-nil unitPrice replaces the ingredient's price first.
func (s *Service) Receive(ingredientID uint, qty float64, unitPrice *decimal.Decimal, actor, notes string) (*models.StockTransaction, error) {
	if qty <= 0 {
		return nil, apperr.Validation("received quantity must be positive")
	}
	if unitPrice != nil {
		if unitPrice.IsNegative() {
			return nil, apperr.Validation("unit price cannot be negative")
		}
		res := s.db.Model(&models.Ingredient{}).Where("id = ?", ingredientID).Update("unit_price", *unitPrice)
		if res.Error != nil {
			return nil, apperr.Internal(res.Error, "failed to update unit price")
		}
		if res.RowsAffected == 0 {
			return nil, apperr.NotFound("ingredient %d not found", ingredientID)
		}
	}
	return s.Apply(ingredientID, qty, Movement{
		Type:        models.TransactionImport,
		Reference:   "receipt",
		PerformedBy: actor,
		Notes:       notes,
	})
}

// Adjust applies a signed correction, for example after a stock count.
func (s *Service) Adjust(ingredientID uint, delta float64, actor, reason string) (*models.StockTransaction, error) {
	if delta == 0 {
		return nil, apperr.Validation("adjustment cannot be zero")
	}
	if reason == "" {
		return nil, apperr.Validation("adjustment reason is required")
	}
	return s.Apply(ingredientID, delta, Movement{
		Type:        models.TransactionAdjustment,
		Reference:   "adjustment",
		PerformedBy: actor,
		Reason:      reason,
	})
}

// RecordWaste removes spoiled or damaged stock.
func (s *Service) RecordWaste(ingredientID uint, qty float64, kind models.TransactionType, actor, reason string) (*models.StockTransaction, error) {
	if qty <= 0 {
		return nil, apperr.Validation("wasted quantity must be positive")
	}
	if kind == "" {
		kind = models.TransactionWaste
	}
	if kind != models.TransactionWaste && kind != models.TransactionDamage {
		return nil, apperr.Validation("waste kind must be waste or damage")
	}
	return s.Apply(ingredientID, -qty, Movement{
		Type:        kind,
		Reference:   string(kind),
		PerformedBy: actor,
		Reason:      reason,
	})
}
