package order

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/lifecycle"
	repo "github.com/Additional-Code/topup/internal/repository/order"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

// CreateInput is a purchase request. Provider matches either the product's
// provider name or its category.
type CreateInput struct {
	ProductCode   string
	Target        string
	PaymentMethod string
	Provider      string
}

func (in CreateInput) normalize() (CreateInput, error) {
	in.ProductCode = strings.TrimSpace(in.ProductCode)
	in.Target = strings.TrimSpace(in.Target)
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.Provider = strings.TrimSpace(in.Provider)

	var missing []string
	if in.ProductCode == "" {
		missing = append(missing, "product_code")
	}
	if in.Target == "" {
		missing = append(missing, "target")
	}
	if in.PaymentMethod == "" {
		missing = append(missing, "payment_method")
	}
	if in.Provider == "" {
		missing = append(missing, "provider")
	}
	if len(missing) > 0 {
		return in, errorbank.BadRequest("missing required fields: "+strings.Join(missing, ", "),
			errorbank.WithDetail("fields", missing))
	}
	return in, nil
}

// Create prices the order, opens a deposit for the total and persists the
// order as PENDING_PAYMENT. Nothing is stored unless the deposit was opened.
func (s *Service) Create(ctx context.Context, input CreateInput) (*entity.Order, error) {
	in, err := input.normalize()
	if err != nil {
		return nil, err
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("order.product_code", in.ProductCode),
		attribute.String("order.payment_method", in.PaymentMethod),
	))
	defer span.End()

	product, ok := s.catalog.FindProduct(in.ProductCode, in.Provider)
	if !ok {
		return nil, errorbank.NotFound("product not found",
			errorbank.WithDetail("product_code", in.ProductCode),
			errorbank.WithDetail("provider", in.Provider),
		)
	}
	method, ok := s.catalog.FindPaymentMethod(in.PaymentMethod)
	if !ok {
		return nil, errorbank.NotFound("payment method not found", errorbank.WithDetail("payment_method", in.PaymentMethod))
	}

	pricing := lifecycle.ComputePricing(product.Price, method.FlatFee, method.FeePercent)
	if method.Min.IsPositive() && pricing.TotalAmountDue.LessThan(method.Min) ||
		method.Max.IsPositive() && pricing.TotalAmountDue.GreaterThan(method.Max) {
		return nil, errorbank.Unprocessable("amount is outside the payment method limits",
			errorbank.WithDetail("total_amount_due", pricing.TotalAmountDue.String()),
			errorbank.WithDetail("min", method.Min.String()),
			errorbank.WithDetail("max", method.Max.String()),
		)
	}

	orderID := lifecycle.NewOrderID()
	depositReff := lifecycle.NewDepositReffID()
	span.SetAttributes(attribute.String("order.id", orderID))

	res := s.gateway.OpenDeposit(ctx, atlantic.DepositRequest{
		ReffID:  depositReff,
		Nominal: pricing.TotalAmountDue,
		Type:    method.Type,
		Method:  method.Code,
	})
	switch res.Outcome {
	case atlantic.OutcomeOK:
	case atlantic.OutcomeRejected:
		span.SetStatus(codes.Error, "deposit rejected")
		return nil, errorbank.UpstreamRejected(providerMessage(res.Message, "provider rejected the deposit"),
			errorbank.WithCause(res.Failure()))
	default:
		span.RecordError(res.Failure())
		span.SetStatus(codes.Error, "deposit transport failure")
		return nil, errorbank.UpstreamUnavailable("payment provider unavailable", errorbank.WithCause(res.Failure()))
	}
	if res.Value.ID == "" {
		span.SetStatus(codes.Error, "deposit without id")
		return nil, errorbank.UpstreamRejected("provider returned no deposit id")
	}

	now := s.clock.Now()
	order := &entity.Order{
		ID:                orderID,
		DepositReffID:     depositReff,
		ProductCode:       product.Code,
		ProductName:       product.Name,
		ProductPrice:      pricing.BasePrice,
		ProviderName:      product.Provider,
		ProductCategory:   product.Category,
		ImageURL:          product.ImageURL,
		PaymentMethodCode: method.Code,
		PaymentMethodName: method.Name,
		PaymentMethodType: method.Type,
		Target:            in.Target,
		PaymentMethodFee:  pricing.PaymentMethodFee,
		GlobalAdminFee:    pricing.GlobalAdminFee,
		TotalAdminFee:     pricing.TotalAdminFee,
		TotalAmountDue:    pricing.TotalAmountDue,
		Status:            string(lifecycle.StatusPendingPayment),
		AtlanticDepositID: res.Value.ID,
		DepositDetails:    lifecycle.MergeDetails(nil, res.Value.Details),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		s.abandonDeposit(ctx, order)
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, errorbank.Conflict("order already exists", errorbank.WithCause(err))
		}
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	s.refreshCache(ctx, order)
	s.publish(ctx, EventOrderCreated, order, "")
	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", method.Code)))
	s.logger.Info("order created",
		zap.String("id", order.ID),
		zap.String("product_code", order.ProductCode),
		zap.String("total_amount_due", order.TotalAmountDue.String()),
	)
	return order, nil
}

// abandonDeposit cancels a deposit whose order could not be stored so the
// customer is not left with a payable deposit and no order.
func (s *Service) abandonDeposit(ctx context.Context, order *entity.Order) {
	res := s.gateway.CancelDeposit(context.WithoutCancel(ctx), order.AtlanticDepositID)
	if res.Outcome != atlantic.OutcomeOK {
		s.logger.Error("failed to cancel orphaned deposit",
			zap.String("deposit_id", order.AtlanticDepositID),
			zap.String("deposit_reff_id", order.DepositReffID),
			zap.Stringer("outcome", res.Outcome),
			zap.Error(res.Failure()),
		)
		return
	}
	s.logger.Warn("cancelled deposit after persistence failure", zap.String("deposit_id", order.AtlanticDepositID))
}

func providerMessage(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
