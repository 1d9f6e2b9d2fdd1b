package order

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/topup/internal/dto"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/presentation/http/response"
	repo "github.com/Additional-Code/topup/internal/repository/order"
	service "github.com/Additional-Code/topup/internal/service/order"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/topup/transport/http/order")

// Service is the order behaviour the HTTP layer depends on.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (*entity.Order, error)
	Get(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, filter repo.Filter) ([]entity.Order, int, error)
	Reconcile(ctx context.Context, id string) (*entity.Order, error)
	Cancel(ctx context.Context, id string) (*entity.Order, error)
}

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/api/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("/:id/reconcile", h.reconcile)
	g.GET("/:id/status", h.reconcile)
	g.POST("/:id/cancel", h.cancel)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("order.product_code", payload.ProductCode),
		attribute.String("order.payment_method", payload.PaymentMethod),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, service.CreateInput{
		ProductCode:   payload.ProductCode,
		Target:        payload.Target,
		PaymentMethod: payload.PaymentMethod,
		Provider:      payload.Provider,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	return b.WithStatus(http.StatusCreated).
		WithMessage("order created, awaiting payment").
		WithData(dto.NewOrderResponse(order)).
		Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	page, err := queryInt(c, "page")
	if err != nil {
		return b.WithError(err).Build()
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		return b.WithError(err).Build()
	}
	filter := repo.Filter{
		Status:   c.QueryParam("status"),
		Target:   c.QueryParam("target"),
		Page:     page,
		PageSize: pageSize,
	}.Normalize()

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, total, err := h.svc.List(ctx, filter)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := dto.OrderListResponse{
		Orders:   make([]dto.OrderResponse, 0, len(orders)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for i := range orders {
		out.Orders = append(out.Orders, dto.NewOrderResponse(&orders[i]))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.NewOrderResponse(order)).Build()
}

func (h *Handler) reconcile(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.reconcile", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Reconcile(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.String("order.status", order.Status))

	return b.WithMessage("order status is " + order.Status).
		WithData(dto.NewOrderResponse(order)).
		Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := h.svc.Cancel(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithMessage("order cancelled").
		WithData(dto.NewOrderResponse(order)).
		Build()
}

func orderID(c echo.Context) (string, error) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", errorbank.BadRequest("order id is required")
	}
	return id, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err))
	}
	return n, nil
}
