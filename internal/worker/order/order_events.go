package order

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/cache"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/messaging"
	ordersvc "github.com/Additional-Code/topup/internal/service/order"
	"github.com/Additional-Code/topup/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/topup/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderEventsHandler audits order events and evicts the order read cache so
// other replicas stop serving the previous status.
func NewOrderEventsHandler(logger *zap.Logger, store cache.Store, cfg config.Config) worker.HandlerRegistration {
	logger = logger.Named("order_events")
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event ordersvc.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Acknowledge and drop payloads that cannot be decoded.
			logger.Error("failed to decode order event", zap.Error(err), zap.ByteString("key", msg.Key))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		if event.OrderID == "" {
			logger.Warn("order event without order id", zap.String("type", event.Type))
			return nil
		}
		span.SetAttributes(
			attribute.String("order.id", event.OrderID),
			attribute.String("order.event", event.Type),
		)

		switch event.Type {
		case ordersvc.EventOrderCreated, ordersvc.EventOrderStatusChanged:
		default:
			logger.Warn("unknown order event type", zap.String("type", event.Type), zap.String("id", event.OrderID))
			return nil
		}

		if event.Type == ordersvc.EventOrderStatusChanged {
			if err := store.Delete(ctx, ordersvc.CacheKey(event.OrderID)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "cache eviction failed")
				return err
			}
		}

		logger.Info("order event processed",
			zap.String("type", event.Type),
			zap.String("id", event.OrderID),
			zap.String("status", event.Status),
			zap.String("previous_status", event.PreviousStatus),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
