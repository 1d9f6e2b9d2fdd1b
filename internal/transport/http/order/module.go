package order

import (
	"go.uber.org/fx"

	"github.com/labstack/echo/v4"

	service "github.com/Additional-Code/topup/internal/service/order"
)

// Module wires HTTP order handlers.
var Module = fx.Options(
	fx.Provide(
		func(svc *service.Service) Service { return svc },
		NewHandler,
	),
	fx.Invoke(func(e *echo.Echo, h *Handler) {
		Register(e, h)
	}),
)
