package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/middlewares"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/services"
	"github.com/yeremiapane/order-tracker/utils"
)

// clientCommand is what a socket client may send: follow or drop an order.
type clientCommand struct {
	Action  string `json:"action"`
	OrderID string `json:"orderId"`
}

type KDSController struct {
	Hub        *kds.Hub
	Store      services.OrderStore
	Timeline   *services.TimelineService
	SendBuffer int
	upgrader   websocket.Upgrader
}

func NewKDSController(hub *kds.Hub, store services.OrderStore, timeline *services.TimelineService, sendBuffer int, allowedOrigin string) *KDSController {
	return &KDSController{
		Hub:        hub,
		Store:      store,
		Timeline:   timeline,
		SendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

// GuestSocket -> websocket for one order. The current snapshot is sent right
// after subscribing so nothing published in between is missed.
func (kc *KDSController) GuestSocket(c *gin.Context) {
	orderID := c.Param("order_id")
	if _, err := kc.Store.Get(c.Request.Context(), orderID); err != nil {
		respondServiceError(c, err)
		return
	}

	session, ok := kc.open(c)
	if !ok {
		return
	}
	defer kc.Hub.Unregister(session.ID())

	kc.follow(session, orderID)
	session.ReadPump(kc.commandHandler(session))
}

// KitchenSocket -> staff websocket that receives every order. Active orders
// are replayed on connect.
func (kc *KDSController) KitchenSocket(c *gin.Context) {
	role := c.GetString(middlewares.ContextRole)
	if !models.IsStaffRole(role) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	session, ok := kc.open(c)
	if !ok {
		return
	}
	defer kc.Hub.Unregister(session.ID())

	if err := kc.Hub.SubscribeAll(session.ID()); err != nil {
		utils.ErrorLogger.WithError(err).Error("kitchen subscribe failed")
		return
	}

	active, err := kc.Store.List(context.Background(),
		models.StatusPending, models.StatusAssigned, models.StatusPreparing, models.StatusReady)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("failed to load active orders")
	}
	for i := range active {
		if err := kc.Hub.SendTo(session.ID(), kds.NewStatusUpdate(&active[i])); err != nil {
			break
		}
	}

	utils.InfoLogger.WithFields(logrus.Fields{"session_id": session.ID(), "role": role}).Info("kitchen display connected")
	session.ReadPump(kc.commandHandler(session))
}

func (kc *KDSController) open(c *gin.Context) (*kds.WSSession, bool) {
	conn, err := kc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.WithError(err).Warn("websocket upgrade failed")
		return nil, false
	}
	session := kds.NewWSSession(conn, kc.SendBuffer)
	kc.Hub.Register(session)
	go session.WritePump()
	return session, true
}

// follow subscribes first and then sends the snapshot.
func (kc *KDSController) follow(session kds.Session, orderID string) {
	log := utils.InfoLogger.WithFields(logrus.Fields{"session_id": session.ID(), "order_id": orderID})

	if err := kc.Hub.Subscribe(orderID, session.ID()); err != nil {
		log.WithError(err).Warn("subscribe failed")
		return
	}
	view, err := kc.Timeline.GetTimeline(context.Background(), orderID)
	if err != nil {
		kc.Hub.Unsubscribe(orderID, session.ID())
		log.WithError(err).Warn("snapshot unavailable, subscription dropped")
		return
	}
	if err := kc.Hub.SendTo(session.ID(), view.StatusUpdate); err != nil {
		log.WithError(err).Warn("failed to send snapshot")
		return
	}
	log.Debug("session following order")
}

func (kc *KDSController) commandHandler(session kds.Session) func([]byte) {
	return func(msg []byte) {
		var cmd clientCommand
		if err := json.Unmarshal(msg, &cmd); err != nil || cmd.OrderID == "" {
			return
		}
		switch cmd.Action {
		case "subscribe":
			kc.follow(session, cmd.OrderID)
		case "unsubscribe":
			kc.Hub.Unsubscribe(cmd.OrderID, session.ID())
		}
	}
}
