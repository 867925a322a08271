package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/services"
	"github.com/yeremiapane/order-tracker/utils"
)

type AdminController struct {
	Store   services.OrderStore
	Hub     *kds.Hub
	Monitor *services.TransitionMonitor
}

func NewAdminController(store services.OrderStore, hub *kds.Hub, monitor *services.TransitionMonitor) *AdminController {
	return &AdminController{Store: store, Hub: hub, Monitor: monitor}
}

// GetDashboardStats -> orders per status, live sessions and lifecycle counters
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	counts, err := ac.Store.CountByStatus(c.Request.Context())
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	var stats struct {
		TotalOrders    int64                        `json:"total_orders"`
		ActiveOrders   int64                        `json:"active_orders"`
		OrderStats     map[models.OrderStatus]int64 `json:"order_stats"`
		Sessions       int                          `json:"sessions"`
		PendingPrompts int                          `json:"pending_review_prompts"`
		Transitions    services.TransitionMetrics   `json:"transitions"`
	}

	stats.OrderStats = make(map[models.OrderStatus]int64)
	for _, s := range append(models.HappyPath, models.StatusCancelled) {
		n := counts[s]
		stats.OrderStats[s] = n
		stats.TotalOrders += n
		if !s.Terminal() {
			stats.ActiveOrders += n
		}
	}
	stats.Sessions = ac.Hub.SessionCount()
	stats.PendingPrompts = ac.Hub.PendingPrompts()
	if ac.Monitor != nil {
		stats.Transitions = ac.Monitor.GetMetrics()
	}

	utils.RespondJSON(c, http.StatusOK, "Dashboard stats", stats)
}
