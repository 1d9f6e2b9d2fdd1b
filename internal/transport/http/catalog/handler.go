package catalog

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/dto"
	"github.com/Additional-Code/topup/internal/presentation/http/response"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/topup/transport/http/catalog")

// Catalog is the catalog behaviour exposed over HTTP.
type Catalog interface {
	Snapshot() *catalog.Snapshot
	Reload(ctx context.Context) (*catalog.Snapshot, error)
}

// Handler serves catalog listings.
type Handler struct {
	catalog Catalog
}

// NewHandler constructs a catalog Handler.
func NewHandler(c Catalog) *Handler {
	return &Handler{catalog: c}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/api/products", h.products)
	e.GET("/api/payment-methods", h.paymentMethods)
	e.POST("/api/admin/catalog/reload", h.reload)
}

func (h *Handler) products(c echo.Context) error {
	snap := h.catalog.Snapshot()
	items := snap.ProductsBy(strings.TrimSpace(c.QueryParam("provider")), strings.TrimSpace(c.QueryParam("category")))

	return response.New(c).WithData(dto.CatalogResponse[catalog.Product]{
		Items:    items,
		Count:    len(items),
		LoadedAt: snap.LoadedAt(),
	}).Build()
}

func (h *Handler) paymentMethods(c echo.Context) error {
	snap := h.catalog.Snapshot()
	items := snap.PaymentMethods()

	return response.New(c).WithData(dto.CatalogResponse[catalog.PaymentMethod]{
		Items:    items,
		Count:    len(items),
		LoadedAt: snap.LoadedAt(),
	}).Build()
}

func (h *Handler) reload(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "catalog.reload")
	defer span.End()

	snap, err := h.catalog.Reload(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	span.SetAttributes(attribute.Int("catalog.products", len(snap.Products())))

	return b.WithStatus(http.StatusOK).
		WithMessage("catalog reloaded").
		WithData(dto.CatalogReloadResponse{
			Products:       len(snap.Products()),
			PaymentMethods: len(snap.PaymentMethods()),
			LoadedAt:       snap.LoadedAt(),
		}).
		Build()
}
