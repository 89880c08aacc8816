package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cafehub/internal/apperr"
	"cafehub/internal/inventory"
	"cafehub/internal/menu"
	"cafehub/internal/models"
)

func (a *CafeAPI) ListIngredients(c *gin.Context) {
	list, err := a.svc.Inventory.ListIngredients(c.Query("include_inactive") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *CafeAPI) LowStock(c *gin.Context) {
	list, err := a.svc.Inventory.LowStock()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *CafeAPI) GetIngredient(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ing, err := a.svc.Inventory.GetIngredient(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ing)
}

func (a *CafeAPI) IngredientHistory(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := a.svc.Inventory.History(id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *CafeAPI) CreateIngredient(c *gin.Context) {
	var in inventory.IngredientInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ing, err := a.svc.Inventory.CreateIngredient(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ing)
}

func (a *CafeAPI) UpdateIngredient(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in inventory.IngredientInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ing, err := a.svc.Inventory.UpdateIngredient(id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ing)
}

func (a *CafeAPI) DeleteIngredient(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	deactivated, err := a.svc.Inventory.DeleteIngredient(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": !deactivated, "deactivated": deactivated})
}

type receiveRequest struct {
	Quantity  float64          `json:"quantity" binding:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Notes     string           `json:"notes"`
}

func (a *CafeAPI) ReceiveStock(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := a.svc.Inventory.Receive(id, req.Quantity, req.UnitPrice, actorFrom(c).Label(), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type adjustRequest struct {
	Delta  float64 `json:"delta" binding:"required"`
	Reason string  `json:"reason" binding:"required"`
}

func (a *CafeAPI) AdjustStock(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := a.svc.Inventory.Adjust(id, req.Delta, actorFrom(c).Label(), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type wasteRequest struct {
	Quantity float64                `json:"quantity" binding:"required,gt=0"`
	Type     models.TransactionType `json:"type"`
	Reason   string                 `json:"reason"`
}

func (a *CafeAPI) RecordWaste(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req wasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Type == "" {
		req.Type = models.TransactionWaste
	}
	entry, err := a.svc.Inventory.RecordWaste(id, req.Quantity, req.Type, actorFrom(c).Label(), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (a *CafeAPI) LedgerEntries(c *gin.Context) {
	ref := c.Query("reference")
	if ref == "" {
		respondError(c, apperr.Validation("reference is required"))
		return
	}
	entries, err := a.svc.Inventory.Entries(ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Menu handlers

func (a *CafeAPI) ListMenu(c *gin.Context) {
	items, err := a.svc.Menu.List(models.MenuCategory(c.Query("category")), c.Query("available") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *CafeAPI) GetMenuItem(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	item, err := a.svc.Menu.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *CafeAPI) CheckAvailability(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	qty, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil {
		respondError(c, apperr.Validation("invalid quantity %q", c.Query("quantity")))
		return
	}
	report, err := a.svc.Inventory.CheckAvailability(id, qty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type linesRequest struct {
	Items []inventory.Line `json:"items" binding:"required,min=1,dive"`
}

func (a *CafeAPI) CheckLines(c *gin.Context) {
	var req linesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := a.svc.Inventory.CheckLines(req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *CafeAPI) CreateMenuItem(c *gin.Context) {
	var in menu.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	item, err := a.svc.Menu.Create(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (a *CafeAPI) UpdateMenuItem(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in menu.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	item, err := a.svc.Menu.Update(id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *CafeAPI) SetMenuAvailability(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Available *bool `json:"available" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := a.svc.Menu.SetAvailability(id, *req.Available)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
