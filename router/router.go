package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yeremiapane/order-tracker/controllers"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/middlewares"
	"github.com/yeremiapane/order-tracker/services"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer needs. Limiters are owned by the caller
// so it can prune them.
type Deps struct {
	DB            *gorm.DB
	Store         services.OrderStore
	Engine        *services.TransitionEngine
	Timeline      *services.TimelineService
	Notifications *services.NotificationSink
	Monitor       *services.TransitionMonitor
	Hub           *kds.Hub
	Gatherer      prometheus.Gatherer

	Limiter       *middlewares.RateLimiter
	StrictLimiter *middlewares.RateLimiter

	CORSOrigin string
	SendBuffer int
	TokenTTL   time.Duration
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigin))
	r.Use(middlewares.LoggerMiddleware())
	if d.Limiter != nil {
		r.Use(d.Limiter.RateLimit())
	}

	userCtrl := controllers.NewUserController(d.DB, d.TokenTTL)
	orderCtrl := controllers.NewOrderController(d.Engine, d.Store, d.Timeline)
	kdsCtrl := controllers.NewKDSController(d.Hub, d.Store, d.Timeline, d.SendBuffer, d.CORSOrigin)
	notificationCtrl := controllers.NewNotificationController(d.Notifications)
	adminCtrl := controllers.NewAdminController(d.Store, d.Hub, d.Monitor)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	public := r.Group("/")
	if d.StrictLimiter != nil {
		public.Use(d.StrictLimiter.RateLimit())
	}
	{
		public.POST("/login", userCtrl.Login)
	}

	// -- GUEST (no auth) --
	r.POST("/orders", orderCtrl.PlaceOrder)
	r.GET("/orders/:order_id/timeline", orderCtrl.GetTimeline)
	r.GET("/ws/orders/:order_id", kdsCtrl.GuestSocket)

	// -- KITCHEN DISPLAY --
	r.GET("/ws/kitchen", middlewares.WebSocketAuthMiddleware(), kdsCtrl.KitchenSocket)

	// ----------------------------------------------------------------
	//                      STAFF ROUTES
	// ----------------------------------------------------------------
	admin := r.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(), middlewares.StaffOnly())
	{
		admin.POST("/logout", userCtrl.Logout)
		admin.GET("/profile", userCtrl.GetProfile)

		users := admin.Group("/users", middlewares.AdminOnly())
		{
			users.POST("", userCtrl.Register)
			users.GET("", userCtrl.GetAllUsers)
		}

		admin.GET("/orders", orderCtrl.ListOrders)
		admin.GET("/orders/:order_id", orderCtrl.GetOrderByID)
		admin.POST("/orders/:order_id/transitions", orderCtrl.RequestTransition)
		admin.POST("/orders/:order_id/cancel", orderCtrl.CancelOrder)

		admin.GET("/notifications", notificationCtrl.GetAllNotifications)
		admin.GET("/dashboard/stats", adminCtrl.GetDashboardStats)
	}

	return r
}
