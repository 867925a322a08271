package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/order-tracker/services"
	"github.com/yeremiapane/order-tracker/utils"
)

type NotificationController struct {
	Notifications *services.NotificationSink
}

func NewNotificationController(sink *services.NotificationSink) *NotificationController {
	return &NotificationController{Notifications: sink}
}

// GetAllNotifications -> newest first, ?limit= up to 200
func (nc *NotificationController) GetAllNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	notifs, err := nc.Notifications.List(c.Request.Context(), limit)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications", notifs)
}
