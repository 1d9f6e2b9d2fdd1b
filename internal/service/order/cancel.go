package order

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/lifecycle"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

const cancelConfirmed = "cancel"

// Cancel cancels the deposit of an unpaid order. The order becomes
// PAYMENT_CANCELLED only when the provider confirms the cancellation.
func (s *Service) Cancel(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.withOrderLock(ctx, id, func(ctx context.Context) (*entity.Order, error) {
		return s.cancelLocked(ctx, id)
	})
	result := "ok"
	if err != nil {
		result = string(errorbank.From(err).Kind())
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
	}
	s.metrics.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return order, err
}

func (s *Service) cancelLocked(ctx context.Context, id string) (*entity.Order, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.AtlanticDepositID == "" {
		return nil, errorbank.InvalidState("order has no deposit to cancel", errorbank.WithDetail("order_id", id))
	}
	if !lifecycle.Status(current.Status).AwaitingPayment() {
		return nil, errorbank.InvalidState("order can no longer be cancelled",
			errorbank.WithDetail("order_id", id),
			errorbank.WithDetail("status", current.Status),
		)
	}

	res := s.gateway.CancelDeposit(ctx, current.AtlanticDepositID)
	switch res.Outcome {
	case atlantic.OutcomeOK:
	case atlantic.OutcomeRejected:
		return nil, errorbank.UpstreamRejected(providerMessage(res.Message, "provider refused the cancellation"),
			errorbank.WithCause(res.Failure()))
	default:
		return nil, errorbank.UpstreamUnavailable("payment provider unavailable", errorbank.WithCause(res.Failure()))
	}
	if !strings.EqualFold(strings.TrimSpace(res.Value.Status), cancelConfirmed) {
		return nil, errorbank.UpstreamRejected("provider did not confirm the cancellation",
			errorbank.WithDetail("provider_status", res.Value.Status))
	}

	next := current.Clone()
	next.DepositDetails = lifecycle.MergeDetails(next.DepositDetails, res.Value.Details)
	next.DepositDetails["status"] = cancelConfirmed
	next.Status = string(lifecycle.StatusPaymentCancelled)
	next.UpdatedAt = s.clock.Now()

	if err := s.save(ctx, next, current.Version); err != nil {
		return nil, err
	}
	s.metrics.transition(ctx, current.Status, next.Status)
	s.publish(ctx, EventOrderStatusChanged, next, current.Status)
	s.logger.Info("order cancelled", zap.String("id", next.ID), zap.String("deposit_id", next.AtlanticDepositID))
	return next, nil
}
