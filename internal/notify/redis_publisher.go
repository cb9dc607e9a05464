// Package notify delivers low-stock alerts to Redis subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"inventory-ledger/internal/core"

	"github.com/redis/go-redis/v9"
)

// Alert is the JSON message published when a balance drops below its minimum.
type Alert struct {
	ProductID    int       `json:"product_id"`
	SKU          string    `json:"sku"`
	ProductName  string    `json:"product_name"`
	LocationID   int       `json:"location_id"`
	LocationName string    `json:"location_name"`
	Quantity     int       `json:"quantity"`
	MinStock     int       `json:"min_stock"`
	Unit         string    `json:"unit"`
	At           time.Time `json:"at"`
}

// RedisClient is the subset of *redis.Client the publisher uses.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
}

// RedisPublisher is a core.StockObserver. Low balances are published on
// Channel and recorded in the hash Channel+":current", keyed by
// "<product_id>:<location_id>"; a balance back at or above its minimum is
// removed from the hash. Redis failures are logged and never returned.
type RedisPublisher struct {
	client  RedisClient
	channel string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewRedisPublisher(client RedisClient, channel string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// CurrentKey is the hash holding balances that are currently low.
func (p *RedisPublisher) CurrentKey() string {
	return p.channel + ":current"
}

func levelField(level core.StockLevel) string {
	return fmt.Sprintf("%d:%d", level.ProductID, level.LocationID)
}

func (p *RedisPublisher) StockChanged(ctx context.Context, level core.StockLevel) {
	// The mutation has committed; a cancelled request should not drop the alert.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if !level.IsLow() {
		if err := p.client.HDel(ctx, p.CurrentKey(), levelField(level)).Err(); err != nil {
			p.logger.Error("failed to clear low-stock entry", "key", p.CurrentKey(), "error", err)
		}
		return
	}

	payload, err := json.Marshal(Alert{
		ProductID:    level.ProductID,
		SKU:          level.SKU,
		ProductName:  level.ProductName,
		LocationID:   level.LocationID,
		LocationName: level.LocationName,
		Quantity:     level.Quantity,
		MinStock:     level.MinStock,
		Unit:         level.Unit,
		At:           p.now().UTC(),
	})
	if err != nil {
		p.logger.Error("failed to encode low-stock alert", "error", err)
		return
	}

	if err := p.client.HSet(ctx, p.CurrentKey(), levelField(level), level.Quantity).Err(); err != nil {
		p.logger.Error("failed to record low-stock entry", "key", p.CurrentKey(), "error", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		p.logger.Error("failed to publish low-stock alert", "channel", p.channel, "error", err)
		return
	}
	p.logger.Debug("low-stock alert published", "channel", p.channel, "receivers", receivers,
		"product_id", level.ProductID, "location_id", level.LocationID)
}
