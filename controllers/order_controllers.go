package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-tracker/middlewares"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/services"
	"github.com/yeremiapane/order-tracker/utils"
)

type OrderController struct {
	Engine   *services.TransitionEngine
	Store    services.OrderStore
	Timeline *services.TimelineService
}

func NewOrderController(engine *services.TransitionEngine, store services.OrderStore, timeline *services.TimelineService) *OrderController {
	return &OrderController{Engine: engine, Store: store, Timeline: timeline}
}

// PlaceOrder -> guest places an order; it starts in pending
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	type ItemReq struct {
		Name        string `json:"name" binding:"required"`
		Quantity    int    `json:"quantity" binding:"required"`
		PrepMinutes int    `json:"prep_minutes"`
		Notes       string `json:"notes"`
	}
	type ReqBody struct {
		ID    string    `json:"id"`
		Items []ItemReq `json:"items" binding:"required,dive"`
	}

	var body ReqBody
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	items := make([]models.OrderItem, 0, len(body.Items))
	for _, it := range body.Items {
		items = append(items, models.OrderItem{
			Name:        it.Name,
			Quantity:    it.Quantity,
			PrepMinutes: it.PrepMinutes,
			Notes:       it.Notes,
		})
	}

	order, err := oc.Engine.PlaceOrder(c.Request.Context(), body.ID, items)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order placed", order)
}

// GetTimeline -> current state and history, used on page load and reconnect
func (oc *OrderController) GetTimeline(c *gin.Context) {
	view, err := oc.Timeline.GetTimeline(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order timeline", view)
}

// ListOrders -> kitchen display, optionally filtered by ?status=pending,assigned
func (oc *OrderController) ListOrders(c *gin.Context) {
	var statuses []models.OrderStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.OrderStatus(strings.TrimSpace(strings.ToLower(s)))
			if !status.Valid() {
				utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("%w: unknown status %q", services.ErrInvalidOrder, s))
				return
			}
			statuses = append(statuses, status)
		}
	}

	orders, err := oc.Store.List(c.Request.Context(), statuses...)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// GetOrderByID -> one order with the statuses it may move to next
func (oc *OrderController) GetOrderByID(c *gin.Context) {
	order, err := oc.Store.Get(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", gin.H{
		"order":           order,
		"allowed_targets": services.AllowedTargets(order.Status),
	})
}

// RequestTransition -> staff moves an order to the next status
func (oc *OrderController) RequestTransition(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	target := models.OrderStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	order, err := oc.Engine.RequestTransition(c.Request.Context(), c.Param("order_id"), target, services.TransitionRequest{
		Note:    body.Note,
		ActorID: actorFrom(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

// CancelOrder -> shorthand for a transition to cancelled
func (oc *OrderController) CancelOrder(c *gin.Context) {
	var body struct {
		Note string `json:"note"`
	}
	// an empty body means no reason; anything else must be valid JSON
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Engine.Cancel(c.Request.Context(), c.Param("order_id"), body.Note, actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}

func actorFrom(c *gin.Context) *uint {
	id, ok := middlewares.CurrentUserID(c)
	if !ok {
		return nil
	}
	return &id
}
