package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"inventory-ledger/internal/core"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type publishCall struct {
	channel string
	message []byte
}

type fakeRedis struct {
	publishes []publishCall
	hash      map[string]interface{}
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hash: map[string]interface{}{}}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.publishes = append(f.publishes, publishCall{channel: channel, message: message.([]byte)})
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.hash[key+"/"+values[i].(string)] = values[i+1]
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, field := range fields {
		delete(f.hash, key+"/"+field)
	}
	return redis.NewIntResult(int64(len(fields)), nil)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisPublisher_PublishesLowStock(t *testing.T) {
	fake := newFakeRedis()
	p := NewRedisPublisher(fake, "inventory:low-stock", quietLogger())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	p.StockChanged(context.Background(), core.StockLevel{
		ProductID: 1, SKU: "PAP-A4", ProductName: "A4 Paper", LocationID: 2, LocationName: "Store",
		Quantity: 3, MinStock: 5, Unit: "pack",
	})

	if len(fake.publishes) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(fake.publishes))
	}
	if fake.publishes[0].channel != "inventory:low-stock" {
		t.Errorf("Published on %q", fake.publishes[0].channel)
	}
	var alert Alert
	if err := json.Unmarshal(fake.publishes[0].message, &alert); err != nil {
		t.Fatalf("Alert is not JSON: %v", err)
	}
	if alert.SKU != "PAP-A4" || alert.Quantity != 3 || alert.MinStock != 5 || !alert.At.Equal(fixed) {
		t.Errorf("Unexpected alert: %+v", alert)
	}
	if got := fake.hash["inventory:low-stock:current/1:2"]; got != 3 {
		t.Errorf("Expected current low entry 3, got %v", got)
	}
}

func TestRedisPublisher_RecoveredBalanceClearsEntry(t *testing.T) {
	fake := newFakeRedis()
	p := NewRedisPublisher(fake, "low", quietLogger())

	p.StockChanged(context.Background(), core.StockLevel{ProductID: 1, LocationID: 2, Quantity: 1, MinStock: 5})
	p.StockChanged(context.Background(), core.StockLevel{ProductID: 1, LocationID: 2, Quantity: 9, MinStock: 5})

	if len(fake.publishes) != 1 {
		t.Errorf("Only the low balance should be published, got %d", len(fake.publishes))
	}
	if _, ok := fake.hash["low:current/1:2"]; ok {
		t.Errorf("Recovered balance should be removed from %s", p.CurrentKey())
	}
}

func TestRedisPublisher_ErrorsAreSwallowed(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	p := NewRedisPublisher(fake, "low", quietLogger())

	p.StockChanged(context.Background(), core.StockLevel{Quantity: 0, MinStock: 1})
	if len(fake.publishes) != 0 {
		t.Errorf("Expected no recorded publishes, got %d", len(fake.publishes))
	}
}

func TestRedisPublisher_CancelledContextStillPublishes(t *testing.T) {
	fake := newFakeRedis()
	p := NewRedisPublisher(fake, "low", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.StockChanged(ctx, core.StockLevel{Quantity: 0, MinStock: 1})
	if len(fake.publishes) != 1 {
		t.Errorf("Expected publish despite cancelled caller context, got %d", len(fake.publishes))
	}
}

func TestRedisPublisher_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	channel := "test:low-stock:" + uuid.NewString()
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	p := NewRedisPublisher(client, channel, quietLogger())
	defer client.Del(ctx, p.CurrentKey())
	p.StockChanged(ctx, core.StockLevel{ProductID: 7, LocationID: 1, SKU: "TON-01", Quantity: 0, MinStock: 2})

	select {
	case msg := <-sub.Channel():
		var alert Alert
		if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
			t.Fatalf("Alert is not JSON: %v", err)
		}
		if alert.ProductID != 7 || alert.SKU != "TON-01" {
			t.Errorf("Unexpected alert: %+v", alert)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for alert")
	}

	qty, err := client.HGet(ctx, p.CurrentKey(), "7:1").Int()
	if err != nil || qty != 0 {
		t.Errorf("Expected current entry 0, got %d (%v)", qty, err)
	}
}
