package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/yeremiapane/order-tracker/config"
	"github.com/yeremiapane/order-tracker/database"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/middlewares"
	"github.com/yeremiapane/order-tracker/models"
	"github.com/yeremiapane/order-tracker/relay"
	"github.com/yeremiapane/order-tracker/router"
	"github.com/yeremiapane/order-tracker/services"
	"github.com/yeremiapane/order-tracker/utils"
	"gorm.io/gorm"
)

// app holds the wired services of one tracker instance.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	hub    *kds.Hub
	router *gin.Engine

	limiter       *middlewares.RateLimiter
	strictLimiter *middlewares.RateLimiter

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &app{
		cfg:           cfg,
		db:            db,
		cancel:        cancel,
		limiter:       middlewares.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
		strictLimiter: middlewares.NewStrictRateLimiter(),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	monitor := services.NewTransitionMonitor(reg)

	store := services.NewGormOrderStore(db)
	a.hub = kds.NewHub(
		kds.WithReviewDelay(cfg.Tracker.ReviewPromptDelay),
		kds.WithObserver(monitor),
		kds.WithReviewGate(func(orderID string) bool {
			gateCtx, done := context.WithTimeout(ctx, 5*time.Second)
			defer done()
			order, err := store.Get(gateCtx, orderID)
			return err == nil && order.Status == models.StatusDelivered
		}),
	)

	policy := services.ETAPolicy{
		DefaultItemPrep: cfg.Tracker.DefaultItemPrep,
		DeliveryBuffer:  cfg.Tracker.DeliveryBuffer,
	}
	engine := services.NewTransitionEngine(store, a.hub, policy).WithMonitor(monitor)
	timeline := services.NewTimelineService(store)

	notifications := services.NewNotificationSink(db)
	a.startSink(ctx, kds.NewAsyncSink("notifications", cfg.Tracker.SinkQueueSize, notifications.Handle))

	if err := a.connectBrokers(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.router = router.SetupRouter(router.Deps{
		DB:            db,
		Store:         store,
		Engine:        engine,
		Timeline:      timeline,
		Notifications: notifications,
		Monitor:       monitor,
		Hub:           a.hub,
		Gatherer:      reg,
		Limiter:       a.limiter,
		StrictLimiter: a.strictLimiter,
		CORSOrigin:    cfg.HTTP.CORSOrigin,
		SendBuffer:    cfg.Tracker.SessionSendBuffer,
		TokenTTL:      cfg.Auth.TokenTTL,
	})

	a.wg.Add(1)
	go a.housekeeping(ctx, time.Minute)
	return a, nil
}

// connectBrokers wires the optional redis relay and AMQP publisher.
func (a *app) connectBrokers(ctx context.Context) error {
	if a.cfg.Redis.Addr != "" {
		dialCtx, done := context.WithTimeout(ctx, 5*time.Second)
		client, err := relay.DialRedis(dialCtx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		done()
		if err != nil {
			return err
		}
		rr := relay.NewRedisRelay(client, a.cfg.Redis.Channel, a.cfg.InstanceID, a.hub)
		a.closers = append(a.closers, rr.Close)
		a.startSink(ctx, kds.NewAsyncSink("redis", a.cfg.Tracker.SinkQueueSize, rr.Publish))

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := rr.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				utils.ErrorLogger.WithError(err).Error("redis relay stopped")
			}
		}()
		utils.InfoLogger.WithField("channel", a.cfg.Redis.Channel).Info("Redis relay enabled")
	}

	if a.cfg.AMQP.URL != "" {
		conn, err := relay.DialAMQP(a.cfg.AMQP.URL)
		if err != nil {
			return err
		}
		pub := relay.NewAMQPPublisher(conn, a.cfg.AMQP.Exchange, a.cfg.InstanceID)
		a.closers = append(a.closers, pub.Close)
		a.startSink(ctx, kds.NewAsyncSink("amqp", a.cfg.Tracker.SinkQueueSize, pub.Publish))
		utils.InfoLogger.WithField("exchange", a.cfg.AMQP.Exchange).Info("AMQP publisher enabled")
	}
	return nil
}

func (a *app) startSink(ctx context.Context, sink *kds.AsyncSink) {
	a.hub.AddSink(sink)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sink.Run(ctx)
	}()
}

// housekeeping prunes revoked tokens and idle rate limiters.
func (a *app) housekeeping(ctx context.Context, every time.Duration) {
	defer a.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			revoked := utils.PruneBlacklist()
			clients := a.limiter.Prune() + a.strictLimiter.Prune()
			utils.InfoLogger.WithField("revoked_tokens", revoked).
				WithField("limited_clients", clients).
				Debug("housekeeping done")
		}
	}
}

// Close stops background work, drops sessions and pending prompts, then
// closes broker and database connections.
func (a *app) Close() {
	a.cancel()
	a.wg.Wait()
	a.hub.Close()
	for _, c := range a.closers {
		if err := c(); err != nil {
			utils.ErrorLogger.WithError(err).Warn("error closing connection")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
