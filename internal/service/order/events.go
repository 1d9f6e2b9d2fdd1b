package order

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/entity"
)

// Event types published on the order topic.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is emitted after an order change is persisted.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Target         string    `json:"target,omitempty"`
	ProductCode    string    `json:"product_code,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (s *Service) publish(ctx context.Context, eventType string, order *entity.Order, previous string) {
	if s.publisher == nil {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		Status:         order.Status,
		PreviousStatus: previous,
		Target:         order.Target,
		ProductCode:    order.ProductCode,
		OccurredAt:     s.clock.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(order.ID), payload); err != nil {
		s.logger.Error("publish order event",
			zap.String("type", eventType),
			zap.String("id", order.ID),
			zap.Error(err),
		)
	}
}
