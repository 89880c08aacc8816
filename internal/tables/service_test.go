package tables

import (
	"testing"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/lock"
	"cafehub/internal/models"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, lock.NewKeyed(), zap.NewNop()), db
}

func TestTableCatalog(t *testing.T) {
	svc, _ := newService(t)

	t1, err := svc.Create(TableInput{Name: "T1", Capacity: 4, Features: []string{"window"}})
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusEmpty, t1.Status)

	_, err = svc.Create(TableInput{Name: "T1"})
	assert.True(t, apperr.IsConflict(err))
	_, err = svc.Create(TableInput{Name: " "})
	assert.True(t, apperr.IsValidation(err))

	updated, err := svc.Update(t1.ID, TableInput{Name: "T1", Capacity: 6, Location: "terrace", Features: []string{"outdoor"}})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Capacity)
	assert.Equal(t, models.StringSlice{"outdoor"}, updated.Features)

	list, err := svc.List(models.TableStatusEmpty)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = svc.List("TRỐNG")
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Get(99)
	assert.True(t, apperr.IsNotFound(err))
}

func TestOccupyAndFreeRecordHistory(t *testing.T) {
	svc, db := newService(t)
	table, err := svc.Create(TableInput{Name: "T2"})
	require.NoError(t, err)

	bookingID := uint(7)
	err = database.WithTx(db, func(tx *gorm.DB) error {
		return Occupy(tx, table.ID, Audit{PerformedBy: "staff", BookingID: &bookingID})
	})
	require.NoError(t, err)

	got, err := svc.Get(table.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusOccupied, got.Status)

	// occupying twice is accepted
	err = database.WithTx(db, func(tx *gorm.DB) error {
		return Occupy(tx, table.ID, Audit{PerformedBy: "staff"})
	})
	require.NoError(t, err)

	err = database.WithTx(db, func(tx *gorm.DB) error {
		return Free(tx, table.ID, Audit{PerformedBy: "cashier", Amount: decimal.NewFromInt(90000), Note: "paid"})
	})
	require.NoError(t, err)

	history, err := svc.History(table.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.TableActionFreed, history[0].Action)
	assert.True(t, decimal.NewFromInt(90000).Equal(history[0].Amount))
	assert.Equal(t, &bookingID, history[2].BookingID)

	err = database.WithTx(db, func(tx *gorm.DB) error {
		return Occupy(tx, 404, Audit{})
	})
	assert.True(t, apperr.IsNotFound(err))
}

func TestResetPurgesPendingOrdersOnly(t *testing.T) {
	svc, db := newService(t)
	table, err := svc.Create(TableInput{Name: "T3"})
	require.NoError(t, err)

	active := table.ID
	pending := models.Order{Code: "p-1", TableID: table.ID, ActiveTableID: &active, Status: models.OrderStatusPending,
		Items: []models.OrderItem{{MenuItemID: 1, Name: "Latte", Price: decimal.NewFromInt(45000), Quantity: 1}}}
	require.NoError(t, db.Create(&pending).Error)
	paid := models.Order{Code: "p-0", TableID: table.ID, Status: models.OrderStatusPaid}
	require.NoError(t, db.Create(&paid).Error)
	milk := models.Ingredient{Name: "Milk", Unit: models.UnitLiter, CurrentStock: 8, Active: true}
	require.NoError(t, db.Create(&milk).Error)
	debit := models.StockTransaction{IngredientID: milk.ID, Type: models.TransactionExport, Quantity: -2,
		PreviousStock: 10, NewStock: 8, Reference: "order:p-1"}
	require.NoError(t, db.Create(&debit).Error)

	got, err := svc.Reset(table.ID, "admin", "end of day")
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusEmpty, got.Status)

	var orders []models.Order
	require.NoError(t, db.Find(&orders).Error)
	require.Len(t, orders, 1)
	assert.Equal(t, "p-0", orders[0].Code)

	var items int
	db.Model(&models.OrderItem{}).Count(&items)
	assert.Equal(t, 0, items)

	// the purged order's stock stays deducted
	var after models.Ingredient
	require.NoError(t, db.First(&after, milk.ID).Error)
	assert.Equal(t, 8.0, after.CurrentStock)
	var ledger int
	db.Model(&models.StockTransaction{}).Where("reference = ?", "order:p-1").Count(&ledger)
	assert.Equal(t, 1, ledger)
}
