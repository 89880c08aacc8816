package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cafehub/internal/apperr"
	"cafehub/internal/database"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
)

type staticResolver []uint

func (r staticResolver) Recipients(context.Context, Event) ([]uint, error) { return r, nil }

type recordingSink struct {
	mu        sync.Mutex
	name      string
	err       error
	delivered []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, e Event, _ []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, e)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestDispatcherDeliversToAllSinksDespiteFailures(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}

	d := NewDispatcher(staticResolver{1, 2}, zap.NewNop(), monitoring.NewCollector(), 8, failing, ok)
	d.Publish(Event{Type: models.NotificationBookingCreated, Title: "Booking created"})
	d.Publish(Event{Type: models.NotificationBookingConfirmed, Title: "Booking confirmed"})
	d.Close()

	assert.Equal(t, 2, failing.count())
	assert.Equal(t, 2, ok.count())
	assert.False(t, ok.delivered[0].OccurredAt.IsZero())

	// publishing after close is a no-op
	assert.NotPanics(t, func() { d.Publish(Event{Type: models.NotificationLowStock}) })
	d.Close()
}

func TestDispatcherSkipsWithoutRecipients(t *testing.T) {
	sink := &recordingSink{name: "ok"}
	d := NewDispatcher(staticResolver{}, zap.NewNop(), nil, 1, sink)
	d.Publish(Event{Type: models.NotificationLowStock})
	d.Close()

	assert.Equal(t, 0, sink.count())
}

func seedUsers(t *testing.T, store *Store) (customer, staff, admin models.User) {
	t.Helper()
	customer = models.User{Name: "Guest", Email: "guest@x", Role: models.RoleCustomer}
	staff = models.User{Name: "Barista", Email: "staff@x", Role: models.RoleStaff}
	admin = models.User{Name: "Admin", Email: "admin@x", Role: models.RoleAdmin}
	for _, u := range []*models.User{&customer, &staff, &admin} {
		require.NoError(t, store.db.Create(u).Error)
	}
	return customer, staff, admin
}

func TestDirectoryAndStore(t *testing.T) {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	dir := NewDirectory(db)
	customer, staff, admin := seedUsers(t, store)

	event := Event{
		Type:       models.NotificationBookingConfirmed,
		Title:      "Booking confirmed",
		CustomerID: &customer.ID,
		ActorID:    staff.ID,
		OccurredAt: time.Now(),
	}
	recipients, err := dir.Recipients(context.Background(), event)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{customer.ID, admin.ID}, recipients)

	event.Audience = AudienceStaff
	recipients, err = dir.Recipients(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []uint{admin.ID}, recipients)

	event.Audience = AudienceCustomer
	recipients, err = dir.Recipients(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []uint{customer.ID}, recipients)
	event.Audience = AudienceAll

	require.NoError(t, store.Deliver(context.Background(), event, []uint{customer.ID, admin.ID}))

	list, err := store.List(customer.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationBookingConfirmed, list[0].Type)

	unread, err := store.UnreadCount(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, store.MarkRead(customer.ID, list[0].ID))
	list, err = store.List(customer.ID, true)
	require.NoError(t, err)
	assert.Empty(t, list)

	// another user cannot touch the notification
	assert.True(t, apperr.IsNotFound(store.MarkRead(admin.ID, 9999)))
	adminList, err := store.List(admin.ID, false)
	require.NoError(t, err)
	require.Len(t, adminList, 1)
	assert.True(t, apperr.IsNotFound(store.Delete(customer.ID, adminList[0].ID)))

	require.NoError(t, store.MarkAllRead(admin.ID))
	require.NoError(t, store.Delete(admin.ID, adminList[0].ID))
	adminList, err = store.List(admin.ID, false)
	require.NoError(t, err)
	assert.Empty(t, adminList)
}

func TestHubPushesToConnectedUser(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 7)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connected(7) == 1 }, time.Second, 10*time.Millisecond)

	err = hub.Deliver(context.Background(), Event{Type: models.NotificationPaymentCompleted, Title: "Paid"}, []uint{7, 8})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, models.NotificationPaymentCompleted, got.Type)
	assert.Equal(t, "Paid", got.Title)
}

type fakeChannel struct {
	exchange string
	msg      amqp.Publishing
	err      error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.msg = msg
	return f.err
}

func TestAMQPSink(t *testing.T) {
	ch := &fakeChannel{}
	sink := NewAMQPSink(ch, "notifications_fanout", zap.NewNop())

	err := sink.Deliver(context.Background(), Event{Type: models.NotificationLowStock, Title: "Low stock"}, []uint{3})
	require.NoError(t, err)

	assert.Equal(t, "notifications_fanout", ch.exchange)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var msg Message
	require.NoError(t, json.Unmarshal(ch.msg.Body, &msg))
	assert.Equal(t, []uint{3}, msg.Recipients)
	assert.Equal(t, models.NotificationLowStock, msg.Type)

	ch.err = errors.New("closed")
	assert.Error(t, sink.Deliver(context.Background(), Event{Type: models.NotificationLowStock}, []uint{3}))
}
