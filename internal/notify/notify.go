// Package notify fans out domain events after they are committed. Emission is
// best-effort: the service logs notifier errors and never rolls back for them.
package notify

import (
	"context"

	"go.uber.org/zap"

	"khaosoi/backend/internal/domain"
)

type Notifier interface {
	OrderStatusChanged(ctx context.Context, event domain.StatusChangedEvent) error
	LowStock(ctx context.Context, event domain.LowStockEvent) error
}

// LogNotifier writes events to the structured log. It is the default sink;
// push channels (LINE, websockets) plug in behind the same interface.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OrderStatusChanged(_ context.Context, event domain.StatusChangedEvent) error {
	n.logger.Info("order status changed",
		zap.String("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("old_status", string(event.OldStatus)),
		zap.String("new_status", string(event.NewStatus)),
	)
	return nil
}

func (n *LogNotifier) LowStock(_ context.Context, event domain.LowStockEvent) error {
	n.logger.Warn("ingredient low on stock",
		zap.String("ingredient_id", event.IngredientID),
		zap.String("name", event.Name),
		zap.Float64("current_stock", event.CurrentStock),
		zap.Float64("min_stock_level", event.MinStockLevel),
	)
	return nil
}

type NoopNotifier struct{}

func (NoopNotifier) OrderStatusChanged(_ context.Context, _ domain.StatusChangedEvent) error {
	return nil
}

func (NoopNotifier) LowStock(_ context.Context, _ domain.LowStockEvent) error {
	return nil
}
