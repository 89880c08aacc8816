package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cafehub/internal/bookings"
	"cafehub/internal/models"
	"cafehub/internal/tables"
)

// Table handlers

func (a *CafeAPI) ListTables(c *gin.Context) {
	list, err := a.svc.Tables.List(models.TableStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *CafeAPI) GetTable(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	table, err := a.svc.Tables.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (a *CafeAPI) CreateTable(c *gin.Context) {
	var in tables.TableInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	table, err := a.svc.Tables.Create(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (a *CafeAPI) UpdateTable(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in tables.TableInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	table, err := a.svc.Tables.Update(id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (a *CafeAPI) TableHistory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	history, err := a.svc.Tables.History(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (a *CafeAPI) ResetTable(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}
	table, err := a.svc.Tables.Reset(id, actorFrom(c).Label(), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (a *CafeAPI) QuickBook(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Guests int `json:"guests" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := a.svc.Bookings.QuickBook(id, req.Guests, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// Order handlers

func (a *CafeAPI) ActiveOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	order, err := a.svc.Orders.Active(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *CafeAPI) AddOrderItems(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req linesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := a.svc.Orders.AddItems(id, req.Items, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *CafeAPI) ReplaceOrderItems(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req linesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := a.svc.Orders.ReplaceItems(id, req.Items, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *CafeAPI) CancelOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	result, err := a.svc.Orders.Cancel(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled successfully", "stock": result})
}

func (a *CafeAPI) PayOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	order, err := a.svc.Orders.Pay(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (a *CafeAPI) ListOrders(c *gin.Context) {
	tableID, ok := uintQuery(c, "table_id")
	if !ok {
		return
	}
	list, err := a.svc.Orders.List(tableID, models.OrderStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *CafeAPI) GetOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	order, err := a.svc.Orders.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// Booking handlers

func (a *CafeAPI) ListBookings(c *gin.Context) {
	tableID, ok := uintQuery(c, "table_id")
	if !ok {
		return
	}
	customerID, ok := uintQuery(c, "customer_id")
	if !ok {
		return
	}
	actor := actorFrom(c)
	if !actor.IsStaff() {
		customerID = actor.UserID
	}
	list, err := a.svc.Bookings.List(bookings.Filter{
		Status:     models.BookingStatus(c.Query("status")),
		Date:       c.Query("date"),
		TableID:    tableID,
		CustomerID: customerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *CafeAPI) CreateBooking(c *gin.Context) {
	var in bookings.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := a.svc.Bookings.Create(in, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booking)
}

func (a *CafeAPI) GetBooking(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	booking, err := a.svc.Bookings.GetFor(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (a *CafeAPI) ConfirmBooking(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	booking, err := a.svc.Bookings.Confirm(id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (a *CafeAPI) CancelBooking(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}
	booking, err := a.svc.Bookings.Cancel(id, req.Reason, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// Notification handlers

func (a *CafeAPI) ListNotifications(c *gin.Context) {
	list, err := a.svc.Notifications.List(actorFrom(c).UserID, c.Query("unread") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *CafeAPI) UnreadCount(c *gin.Context) {
	count, err := a.svc.Notifications.UnreadCount(actorFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (a *CafeAPI) MarkRead(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Notifications.MarkRead(actorFrom(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *CafeAPI) MarkAllRead(c *gin.Context) {
	if err := a.svc.Notifications.MarkAllRead(actorFrom(c).UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *CafeAPI) DeleteNotification(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Notifications.Delete(actorFrom(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
