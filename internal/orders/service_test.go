package orders

import (
	"sync"
	"testing"

	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/bookings"
	"cafehub/internal/database"
	"cafehub/internal/inventory"
	"cafehub/internal/lock"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
	"cafehub/internal/notify"
)

var (
	staff    = models.Actor{UserID: 2, Name: "staff", Role: models.RoleStaff}
	customer = models.Actor{UserID: 3, Name: "alice", Role: models.RoleCustomer}
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) has(typ models.NotificationType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	db       *gorm.DB
	stock    *inventory.Service
	bookings *bookings.Service
	orders   *Service
	events   *recorder
	milk     *models.Ingredient
	table    models.Table
	latte    models.MenuItem // 2 l of milk
	shake    models.MenuItem // 3 l of milk
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, err := buildFixture(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { f.db.Close() })
	return f
}

func buildFixture(name string) (*fixture, error) {
	db, err := database.OpenMemory(name)
	if err != nil {
		return nil, err
	}

	locks := lock.NewKeyed()
	metrics := monitoring.NewCollector()
	events := &recorder{}
	logger := zap.NewNop()

	stock := inventory.NewService(db, locks, events, metrics, logger)
	f := &fixture{
		db:       db,
		stock:    stock,
		bookings: bookings.NewService(db, locks, events, metrics, logger),
		orders:   NewService(db, locks, stock, events, metrics, logger),
		events:   events,
	}

	f.milk, err = stock.CreateIngredient(inventory.IngredientInput{
		Name: "Milk", Unit: models.UnitLiter, UnitPrice: decimal.NewFromInt(30000), InitialStock: 10, MinStock: 1,
	})
	if err != nil {
		return nil, err
	}

	f.table = models.Table{Name: "T1", Status: models.TableStatusEmpty, Capacity: 4}
	if err := db.Create(&f.table).Error; err != nil {
		return nil, err
	}
	f.latte = models.MenuItem{
		Name: "Latte", Category: models.MenuCategoryCoffee, Price: decimal.NewFromInt(45000), Available: true,
		Recipe: models.Recipe{{IngredientID: f.milk.ID, Quantity: 2, Unit: "l"}},
	}
	if err := db.Create(&f.latte).Error; err != nil {
		return nil, err
	}
	f.shake = models.MenuItem{
		Name: "Milkshake", Category: models.MenuCategorySmoothie, Price: decimal.NewFromInt(55000), Available: true,
		Recipe: models.Recipe{{IngredientID: f.milk.ID, Quantity: 3, Unit: "l"}},
	}
	if err := db.Create(&f.shake).Error; err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fixture) milkStock() (float64, error) {
	ing, err := f.stock.GetIngredient(f.milk.ID)
	if err != nil {
		return 0, err
	}
	return ing.CurrentStock, nil
}

func (f *fixture) tableStatus() (models.TableStatus, error) {
	var table models.Table
	err := f.db.First(&table, f.table.ID).Error
	return table.Status, err
}

// confirmedBooking books the fixture table and confirms it.
func (f *fixture) confirmedBooking() (*models.Booking, error) {
	b, err := f.bookings.Create(bookings.CreateInput{
		TableID: &f.table.ID, Guests: 2, Date: "2024-05-02", Time: "19:00",
	}, customer)
	if err != nil {
		return nil, err
	}
	return f.bookings.Confirm(b.ID, staff)
}

func (f *fixture) mustStock(t *testing.T) float64 {
	t.Helper()
	v, err := f.milkStock()
	require.NoError(t, err)
	return v
}

func (f *fixture) mustTable(t *testing.T) models.TableStatus {
	t.Helper()
	v, err := f.tableStatus()
	require.NoError(t, err)
	return v
}

func latte(qty int, f *fixture) []inventory.Line {
	return []inventory.Line{{MenuItemID: f.latte.ID, Quantity: qty}}
}

func TestAddItemsRejectsShortfallAndKeepsStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.AddItems(f.table.ID, []inventory.Line{{MenuItemID: f.shake.ID, Quantity: 4}}, staff)
	require.Error(t, err)
	assert.True(t, apperr.IsInsufficientStock(err))
	report, ok := apperr.DetailsOf(err).(*inventory.OrderReport)
	require.True(t, ok)
	require.Len(t, report.Shortfalls, 1)
	assert.Equal(t, 12.0, report.Shortfalls[0].Needed)
	assert.Equal(t, 10.0, report.Shortfalls[0].Available)

	assert.Equal(t, 10.0, f.mustStock(t))
	assert.Equal(t, models.TableStatusEmpty, f.mustTable(t))
	_, err = f.orders.Active(f.table.ID)
	assert.True(t, apperr.IsNotFound(err))

	entries, err := f.stock.History(f.milk.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAddItemsDeductsAndOccupies(t *testing.T) {
	f := newFixture(t)

	order, err := f.orders.AddItems(f.table.ID, latte(3, f), staff)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Latte", order.Items[0].Name)
	assert.True(t, decimal.NewFromInt(135000).Equal(order.Total))
	assert.Equal(t, 4.0, f.mustStock(t))
	assert.Equal(t, models.TableStatusOccupied, f.mustTable(t))

	entries, err := f.stock.Entries(inventory.OrderReference(order.Code))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, -6.0, entries[0].Quantity)
	assert.Equal(t, 10.0, entries[0].PreviousStock)
	assert.Equal(t, 4.0, entries[0].NewStock)
	assert.Equal(t, models.TransactionExport, entries[0].Type)
}

func TestAddItemsMergesIntoPendingOrder(t *testing.T) {
	f := newFixture(t)

	first, err := f.orders.AddItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)
	second, err := f.orders.AddItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Items, 1)
	assert.Equal(t, 2, second.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(90000).Equal(second.Total))
	assert.Equal(t, 6.0, f.mustStock(t))

	var history []models.TableHistory
	require.NoError(t, f.db.Where("table_id = ?", f.table.ID).Find(&history).Error)
	assert.Len(t, history, 1, "table occupied once")
}

func TestAddItemsValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.AddItems(f.table.ID, nil, staff)
	assert.True(t, apperr.IsValidation(err))
	_, err = f.orders.AddItems(f.table.ID, latte(0, f), staff)
	assert.True(t, apperr.IsValidation(err))
	_, err = f.orders.AddItems(f.table.ID, []inventory.Line{{MenuItemID: 999, Quantity: 1}}, staff)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.orders.AddItems(404, latte(1, f), staff)
	assert.True(t, apperr.IsNotFound(err))

	assert.Equal(t, 10.0, f.mustStock(t))
}

func TestAddItemsFoldsDuplicateLines(t *testing.T) {
	f := newFixture(t)

	// 3 + 3 lattes need 12 l; checked together they must fail.
	_, err := f.orders.AddItems(f.table.ID, append(latte(3, f), latte(3, f)...), staff)
	assert.True(t, apperr.IsInsufficientStock(err))
	assert.Equal(t, 10.0, f.mustStock(t))
}

func TestCancelReturnsStockAndFreesTable(t *testing.T) {
	f := newFixture(t)
	order, err := f.orders.AddItems(f.table.ID, latte(3, f), staff)
	require.NoError(t, err)

	result, err := f.orders.Cancel(f.table.ID, staff)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 10.0, f.mustStock(t))
	assert.Equal(t, models.TableStatusEmpty, f.mustTable(t))

	entries, err := f.stock.Entries(inventory.OrderReference(order.Code))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 6.0, entries[1].Quantity)
	assert.Equal(t, 4.0, entries[1].PreviousStock)
	assert.Equal(t, 10.0, entries[1].NewStock)

	var count int
	require.NoError(t, f.db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = f.orders.Cancel(f.table.ID, staff)
	assert.True(t, apperr.IsNotFound(err))
}

func TestCancelReturnsWhatWasTakenAfterRecipeEdit(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.AddItems(f.table.ID, latte(2, f), staff)
	require.NoError(t, err)
	assert.Equal(t, 6.0, f.mustStock(t))

	edited := models.Recipe{{IngredientID: f.milk.ID, Quantity: 0.5, Unit: "l"}}
	require.NoError(t, f.db.Model(&models.MenuItem{}).Where("id = ?", f.latte.ID).Update("recipe", edited).Error)

	_, err = f.orders.Cancel(f.table.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, 10.0, f.mustStock(t))
}

func TestReplaceItems(t *testing.T) {
	f := newFixture(t)
	order, err := f.orders.AddItems(f.table.ID, latte(3, f), staff)
	require.NoError(t, err)

	replaced, err := f.orders.ReplaceItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)
	assert.Equal(t, order.ID, replaced.ID)
	require.Len(t, replaced.Items, 1)
	assert.Equal(t, 1, replaced.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(45000).Equal(replaced.Total))
	assert.Equal(t, 8.0, f.mustStock(t))

	// 6 lattes need 12 l even after the 2 l come back; nothing changes.
	_, err = f.orders.ReplaceItems(f.table.ID, latte(6, f), staff)
	assert.True(t, apperr.IsInsufficientStock(err))
	assert.Equal(t, 8.0, f.mustStock(t))
	current, err := f.orders.Active(f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Items[0].Quantity)

	// 5 lattes fit only once the old line is returned.
	replaced, err = f.orders.ReplaceItems(f.table.ID, latte(5, f), staff)
	require.NoError(t, err)
	assert.Equal(t, 5, replaced.Items[0].Quantity)
	assert.Equal(t, 0.0, f.mustStock(t))
}

func TestReplaceWithoutOrderOpensOne(t *testing.T) {
	f := newFixture(t)
	order, err := f.orders.ReplaceItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.TableStatusOccupied, f.mustTable(t))
}

func TestPayCompletesBookingAndFreesTable(t *testing.T) {
	f := newFixture(t)
	booking, err := f.confirmedBooking()
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusOccupied, f.mustTable(t))

	_, err = f.orders.AddItems(f.table.ID, latte(2, f), staff)
	require.NoError(t, err)

	paid, err := f.orders.Pay(f.table.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
	assert.Equal(t, "staff", paid.PaidBy)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, models.TableStatusEmpty, f.mustTable(t))

	b, err := f.bookings.Get(booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, b.Status)

	kept, err := f.orders.Get(paid.ID)
	require.NoError(t, err, "paid orders survive freeing the table")
	assert.Len(t, kept.Items, 1)

	var last models.TableHistory
	require.NoError(t, f.db.Where("table_id = ?", f.table.ID).Order("id DESC").First(&last).Error)
	assert.Equal(t, models.TableActionFreed, last.Action)
	assert.True(t, decimal.NewFromInt(90000).Equal(last.Amount))

	assert.True(t, f.events.has(models.NotificationPaymentCompleted))
	assert.True(t, f.events.has(models.NotificationBookingCompleted))

	// the table can take a fresh order afterwards
	next, err := f.orders.AddItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)
	assert.NotEqual(t, paid.Code, next.Code)
}

func TestPayWithoutConfirmedBookingIsRefused(t *testing.T) {
	f := newFixture(t)
	order, err := f.orders.AddItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)

	_, err = f.orders.Pay(f.table.ID, staff)
	assert.True(t, apperr.IsPreconditionFailed(err))

	current, err := f.orders.Active(f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, current.ID)
	assert.Equal(t, models.OrderStatusPending, current.Status)
	assert.Equal(t, models.TableStatusOccupied, f.mustTable(t))
	assert.Equal(t, 8.0, f.mustStock(t))
}

func TestPayWithoutOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.Pay(f.table.ID, staff)
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.orders.Pay(404, staff)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSecondBookingCannotUnseatWalkIn(t *testing.T) {
	f := newFixture(t)
	walkIn, err := f.bookings.QuickBook(f.table.ID, 2, staff)
	require.NoError(t, err)
	_, err = f.orders.AddItems(f.table.ID, latte(2, f), staff)
	require.NoError(t, err)
	assert.Equal(t, 6.0, f.mustStock(t))

	later, err := f.bookings.Create(bookings.CreateInput{
		TableID: &f.table.ID, Guests: 4, Date: "2099-01-01", Time: "12:00",
	}, customer)
	require.NoError(t, err)
	_, err = f.bookings.Confirm(later.ID, staff)
	assert.True(t, apperr.IsConflict(err))

	_, err = f.bookings.Cancel(later.ID, "", customer)
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusOccupied, f.mustTable(t))
	_, err = f.orders.Active(f.table.ID)
	require.NoError(t, err, "walk-in order survives")
	assert.Equal(t, 6.0, f.mustStock(t))

	_, err = f.orders.Pay(f.table.ID, staff)
	require.NoError(t, err)
	b, err := f.bookings.Get(walkIn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, b.Status)
	assert.Equal(t, models.TableStatusEmpty, f.mustTable(t))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	_, err := f.confirmedBooking()
	require.NoError(t, err)
	_, err = f.orders.AddItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)
	_, err = f.orders.Pay(f.table.ID, staff)
	require.NoError(t, err)
	_, err = f.orders.AddItems(f.table.ID, latte(1, f), staff)
	require.NoError(t, err)

	all, err := f.orders.List(f.table.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paid, err := f.orders.List(0, models.OrderStatusPaid)
	require.NoError(t, err)
	assert.Len(t, paid, 1)

	_, err = f.orders.List(0, "CHƯA THANH TOÁN")
	assert.True(t, apperr.IsValidation(err))
}

func TestConcurrentOrdersShareOnePendingOrder(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.AddItems(f.table.ID, latte(1, f), staff)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if apperr.IsInsufficientStock(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, rejected)
	assert.Equal(t, 0.0, f.mustStock(t))

	var pending []models.Order
	require.NoError(t, f.db.Preload("Items").Where("status = ?", models.OrderStatusPending).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.Equal(t, 5, pending[0].Items[0].Quantity)
}
