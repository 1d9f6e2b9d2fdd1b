package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/lifecycle"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

// Reconcile polls the provider for the order's current stage and advances it
// by at most one step, creating the transaction right after the deposit
// settles. Terminal orders are returned as stored without provider calls.
func (s *Service) Reconcile(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Reconcile", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := s.withOrderLock(ctx, id, func(ctx context.Context) (*entity.Order, error) {
		return s.reconcileLocked(ctx, id)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return nil, err
	}
	return order, nil
}

func (s *Service) reconcileLocked(ctx context.Context, id string) (*entity.Order, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	status := lifecycle.Status(current.Status)
	action := lifecycle.Plan(status, current.AtlanticDepositID != "", current.AtlanticTransactionID != "")
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.status", current.Status),
		attribute.String("reconcile.action", action.String()),
	)
	if action == lifecycle.ActionNone {
		s.metrics.reconcile(ctx, action.String(), "skipped")
		return current, nil
	}

	next := current.Clone()
	switch action {
	case lifecycle.ActionPollDeposit:
		if err := s.pollDeposit(ctx, next); err != nil {
			s.metrics.reconcile(ctx, action.String(), "error")
			return nil, err
		}
		if lifecycle.Status(next.Status) == lifecycle.StatusPaymentSuccessful {
			s.createTransaction(ctx, next)
		}
	case lifecycle.ActionCreateTransaction:
		s.createTransaction(ctx, next)
	case lifecycle.ActionPollTransaction:
		if err := s.pollTransaction(ctx, next); err != nil {
			s.metrics.reconcile(ctx, action.String(), "error")
			return nil, err
		}
	}

	next.UpdatedAt = s.clock.Now()
	if err := s.save(ctx, next, current.Version); err != nil {
		s.metrics.reconcile(ctx, action.String(), "error")
		return nil, err
	}
	s.metrics.reconcile(ctx, action.String(), "ok")

	if next.Status != current.Status {
		s.metrics.transition(ctx, current.Status, next.Status)
		s.publish(ctx, EventOrderStatusChanged, next, current.Status)
		s.logger.Info("order status changed",
			zap.String("id", next.ID),
			zap.String("from", current.Status),
			zap.String("to", next.Status),
		)
	}
	return next, nil
}

// pollDeposit applies the provider deposit status to order. A rejected read keeps
// the status and records the provider message; a transport failure leaves order untouched.
func (s *Service) pollDeposit(ctx context.Context, order *entity.Order) error {
	res := s.gateway.DepositStatus(ctx, order.AtlanticDepositID)
	switch res.Outcome {
	case atlantic.OutcomeOK:
		order.DepositDetails = lifecycle.MergeDetails(order.DepositDetails, res.Value.Details)
		order.Status = string(lifecycle.NextFromDeposit(res.Value.Status))
		return nil
	case atlantic.OutcomeRejected:
		order.DepositDetails = lifecycle.MergeDetails(order.DepositDetails, map[string]any{
			"message": providerMessage(res.Message, "provider rejected deposit status request"),
		})
		s.logger.Warn("deposit status rejected", zap.String("id", order.ID), zap.String("message", res.Message))
		return nil
	default:
		return statusFetchError("deposit", res.Failure())
	}
}

// pollTransaction applies the provider transaction status to order. A rejected read keeps
// the status and records the provider message; a transport failure leaves order untouched.
func (s *Service) pollTransaction(ctx context.Context, order *entity.Order) error {
	res := s.gateway.TransactionStatus(ctx, order.AtlanticTransactionID)
	switch res.Outcome {
	case atlantic.OutcomeOK:
		order.TransactionDetails = lifecycle.MergeDetails(order.TransactionDetails, res.Value.Details)
		order.Status = string(lifecycle.NextFromTransaction(res.Value.Status))
		return nil
	case atlantic.OutcomeRejected:
		order.TransactionDetails = lifecycle.MergeDetails(order.TransactionDetails, map[string]any{
			"message": providerMessage(res.Message, "provider rejected transaction status request"),
		})
		s.logger.Warn("transaction status rejected", zap.String("id", order.ID), zap.String("message", res.Message))
		return nil
	default:
		return statusFetchError("transaction", res.Failure())
	}
}

// createTransaction asks the provider to fulfil the order. Every outcome is
// recorded on the order; none aborts the reconcile pass.
func (s *Service) createTransaction(ctx context.Context, order *entity.Order) {
	// A fresh reference is minted only while no earlier one can have been
	// accepted. Once a request may have reached the provider, every retry
	// reuses its reference so a duplicate is refused rather than fulfilled.
	switch {
	case order.TransactionReffID == "":
		s.nextTransactionReff(order)
	case lifecycle.Status(order.Status) == lifecycle.StatusTransactionCreationFailed && !order.TransactionReffSent:
		s.nextTransactionReff(order)
	}

	res := s.gateway.CreateTransaction(ctx, atlantic.TransactionRequest{
		ProductCode: order.ProductCode,
		ReffID:      order.TransactionReffID,
		Target:      order.Target,
	})

	switch res.Outcome {
	case atlantic.OutcomeOK:
		order.TransactionReffSent = true
		order.TransactionDetails = lifecycle.MergeDetails(order.TransactionDetails, res.Value.Details)
		if res.Value.ID == "" {
			order.TransactionDetails = lifecycle.MergeDetails(order.TransactionDetails, map[string]any{
				"message": "provider accepted transaction without id",
				"reff_id": order.TransactionReffID,
			})
			order.Status = string(lifecycle.StatusTransactionCreationFailed)
			s.logger.Warn("transaction created without provider id",
				zap.String("id", order.ID),
				zap.String("reff_id", order.TransactionReffID),
			)
			return
		}
		if err := order.SetTransactionID(res.Value.ID); err != nil {
			s.logger.Error("provider returned a different transaction id",
				zap.String("id", order.ID),
				zap.String("stored", order.AtlanticTransactionID),
				zap.String("received", res.Value.ID),
			)
		}
		order.Status = string(lifecycle.NextFromTransactionCreated(res.Value.Status))
	case atlantic.OutcomeRejected:
		order.TransactionDetails = lifecycle.MergeDetails(order.TransactionDetails, map[string]any{
			"message": res.Message,
			"reff_id": order.TransactionReffID,
		})
		order.Status = string(lifecycle.StatusTransactionCreationFailed)
		s.logger.Warn("transaction creation rejected",
			zap.String("id", order.ID),
			zap.String("reff_id", order.TransactionReffID),
			zap.Bool("reff_sent", order.TransactionReffSent),
			zap.String("message", res.Message),
		)
	default:
		order.TransactionReffSent = true
		order.TransactionDetails = lifecycle.MergeDetails(order.TransactionDetails, map[string]any{
			"error":   res.Failure().Error(),
			"reff_id": order.TransactionReffID,
		})
		order.Status = string(lifecycle.StatusTransactionCreationError)
		s.logger.Error("transaction creation failed",
			zap.String("id", order.ID),
			zap.String("reff_id", order.TransactionReffID),
			zap.Error(res.Failure()),
		)
	}
}

func (s *Service) nextTransactionReff(order *entity.Order) {
	order.TransactionAttempts++
	order.TransactionReffID = lifecycle.TransactionReffID(order.ID, order.TransactionAttempts)
}

func statusFetchError(what string, failure error) error {
	return errorbank.UpstreamUnavailable("payment provider unavailable while fetching "+what+" status",
		errorbank.WithCause(failure))
}
