package core

import (
	"context"
	"log/slog"
)

// StockObserver is notified after a stock mutation commits, once per mutated
// balance. Implementations must not block for long; they cannot fail the
// mutation.
type StockObserver interface {
	StockChanged(ctx context.Context, level StockLevel)
}

// StockObserverFunc adapts a function to StockObserver.
type StockObserverFunc func(ctx context.Context, level StockLevel)

func (f StockObserverFunc) StockChanged(ctx context.Context, level StockLevel) {
	f(ctx, level)
}

// Observers fans a notification out to each observer in order.
type Observers []StockObserver

func (o Observers) StockChanged(ctx context.Context, level StockLevel) {
	for _, obs := range o {
		if obs != nil {
			obs.StockChanged(ctx, level)
		}
	}
}

// LowStockLogger logs a warning whenever a balance drops below its product minimum.
type LowStockLogger struct {
	Logger *slog.Logger
}

func NewLowStockLogger(logger *slog.Logger) *LowStockLogger {
	return &LowStockLogger{Logger: logger}
}

func (l *LowStockLogger) StockChanged(ctx context.Context, level StockLevel) {
	if !level.IsLow() {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "low stock",
		"product_id", level.ProductID,
		"product", level.ProductName,
		"sku", level.SKU,
		"location_id", level.LocationID,
		"location", level.LocationName,
		"quantity", level.Quantity,
		"min_stock", level.MinStock,
	)
}

// notifyObservers delivers levels to obs, recovering from observer panics so
// a misbehaving observer cannot affect a committed mutation. Members of an
// Observers list are isolated from each other.
func notifyObservers(ctx context.Context, logger *slog.Logger, obs StockObserver, levels []StockLevel) {
	if obs == nil {
		return
	}
	if list, ok := obs.(Observers); ok {
		for _, o := range list {
			notifyObservers(ctx, logger, o, levels)
		}
		return
	}
	for _, level := range levels {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("stock observer panicked", "product_id", level.ProductID,
						"location_id", level.LocationID, "panic", r)
				}
			}()
			obs.StockChanged(ctx, level)
		}()
	}
}
