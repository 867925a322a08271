package relay

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-tracker/kds"
	"github.com/yeremiapane/order-tracker/utils"
)

// Deliverer hands relayed events to local sessions. *kds.Hub implements it.
type Deliverer interface {
	Deliver(e kds.Event)
}

// RedisRelay shares status updates between instances over a redis channel,
// so a guest connected to one instance sees transitions applied on another.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	target  Deliverer
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisRelay(client *redis.Client, channel, origin string, target Deliverer) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  origin,
		target:  target,
	}
}

// Publish is a kds.SinkFunc. Only status updates cross instances; review
// prompts are scheduled by every instance for its own sessions.
func (r *RedisRelay) Publish(ctx context.Context, e kds.Event) error {
	if _, ok := e.(kds.StatusUpdate); !ok {
		return nil
	}
	body, err := wrap(r.origin, e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Listen delivers events published by other instances until ctx is done.
func (r *RedisRelay) Listen(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	utils.InfoLogger.WithField("channel", r.channel).Info("redis relay listening")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handle(payload []byte) {
	origin, e, err := unwrap(payload)
	if err != nil {
		utils.ErrorLogger.WithError(err).Warn("ignoring malformed relay message")
		return
	}
	if origin == r.origin {
		return
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id": kds.OrderOf(e),
		"origin":   origin,
	}).Debug("relayed event received")
	r.target.Deliver(e)
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
