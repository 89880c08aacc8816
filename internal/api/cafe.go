// Package api exposes the café services over HTTP with gin.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cafehub/internal/bookings"
	"cafehub/internal/inventory"
	"cafehub/internal/logging"
	"cafehub/internal/menu"
	"cafehub/internal/models"
	"cafehub/internal/monitoring"
	"cafehub/internal/notify"
	"cafehub/internal/orders"
	"cafehub/internal/tables"
)

// Services are the domain services the API delegates to.
type Services struct {
	Inventory     *inventory.Service
	Menu          *menu.Service
	Tables        *tables.Service
	Orders        *orders.Service
	Bookings      *bookings.Service
	Notifications *notify.Store
	Hub           *notify.Hub
	Metrics       *monitoring.Collector
}

// CafeAPI represents the main API handler for the café
type CafeAPI struct {
	Router *gin.Engine
	svc    Services
	secret []byte
	logger *zap.Logger
}

// NewCafeAPI creates a new café API instance
func NewCafeAPI(svc Services, secret []byte, logger *zap.Logger) *CafeAPI {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))

	api := &CafeAPI{
		Router: router,
		svc:    svc,
		secret: secret,
		logger: logger.Named("api"),
	}

	api.setupRoutes()
	return api
}

// setupRoutes configures all API endpoints
func (a *CafeAPI) setupRoutes() {
	a.Router.GET("/health", a.Health)

	if a.svc.Hub != nil {
		a.Router.GET("/ws", QueryAuthMiddleware(a.secret), a.Stream)
	}

	v1 := a.Router.Group("/api/v1", AuthMiddleware(a.secret))
	staff := RequireRole(models.RoleStaff, models.RoleAdmin)
	admin := RequireRole(models.RoleAdmin)

	// Ingredients and stock
	ing := v1.Group("/ingredients", staff)
	{
		ing.GET("", a.ListIngredients)
		ing.GET("/low-stock", a.LowStock)
		ing.GET("/:id", a.GetIngredient)
		ing.GET("/:id/history", a.IngredientHistory)
		ing.POST("", admin, a.CreateIngredient)
		ing.PUT("/:id", admin, a.UpdateIngredient)
		ing.DELETE("/:id", admin, a.DeleteIngredient)
		ing.POST("/:id/receive", a.ReceiveStock)
		ing.POST("/:id/adjust", a.AdjustStock)
		ing.POST("/:id/waste", a.RecordWaste)
	}
	v1.GET("/ledger", staff, a.LedgerEntries)

	// Menu
	v1.GET("/menu", a.ListMenu)
	v1.GET("/menu/:id", a.GetMenuItem)
	v1.GET("/menu/:id/availability", a.CheckAvailability)
	v1.POST("/menu/availability", a.CheckLines)
	v1.POST("/menu", staff, a.CreateMenuItem)
	v1.PUT("/menu/:id", staff, a.UpdateMenuItem)
	v1.PATCH("/menu/:id/availability", staff, a.SetMenuAvailability)

	// Tables and their orders
	tbl := v1.Group("/tables", staff)
	{
		tbl.GET("", a.ListTables)
		tbl.POST("", admin, a.CreateTable)
		tbl.GET("/:id", a.GetTable)
		tbl.PUT("/:id", admin, a.UpdateTable)
		tbl.GET("/:id/history", a.TableHistory)
		tbl.POST("/:id/reset", a.ResetTable)
		tbl.POST("/:id/quick-book", a.QuickBook)

		tbl.GET("/:id/order", a.ActiveOrder)
		tbl.POST("/:id/order/items", a.AddOrderItems)
		tbl.PUT("/:id/order/items", a.ReplaceOrderItems)
		tbl.DELETE("/:id/order", a.CancelOrder)
		tbl.POST("/:id/order/pay", a.PayOrder)
	}
	v1.GET("/orders", staff, a.ListOrders)
	v1.GET("/orders/:id", staff, a.GetOrder)

	// Bookings
	v1.GET("/bookings", a.ListBookings)
	v1.POST("/bookings", a.CreateBooking)
	v1.GET("/bookings/:id", a.GetBooking)
	v1.POST("/bookings/:id/confirm", staff, a.ConfirmBooking)
	v1.POST("/bookings/:id/cancel", a.CancelBooking)

	// Notifications of the caller
	v1.GET("/notifications", a.ListNotifications)
	v1.GET("/notifications/unread-count", a.UnreadCount)
	v1.POST("/notifications/read-all", a.MarkAllRead)
	v1.POST("/notifications/:id/read", a.MarkRead)
	v1.DELETE("/notifications/:id", a.DeleteNotification)
}

// Health reports liveness plus the in-process activity snapshot.
func (a *CafeAPI) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "message": "cafe API is running"}
	if a.svc.Metrics != nil {
		body["metrics"] = a.svc.Metrics.Monitor().GetMetrics()
	}
	c.JSON(http.StatusOK, body)
}

// Stream upgrades to a websocket that receives the caller's notifications.
func (a *CafeAPI) Stream(c *gin.Context) {
	actor := actorFrom(c)
	if err := a.svc.Hub.Serve(c.Writer, c.Request, actor.UserID); err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Uint("user_id", actor.UserID), zap.Error(err))
	}
}
