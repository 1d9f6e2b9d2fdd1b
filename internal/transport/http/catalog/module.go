package catalog

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/topup/internal/catalog"
)

// Module wires HTTP catalog handlers.
var Module = fx.Options(
	fx.Provide(
		func(c *catalog.Catalog) Catalog { return c },
		NewHandler,
	),
	fx.Invoke(func(e *echo.Echo, h *Handler) {
		Register(e, h)
	}),
)
