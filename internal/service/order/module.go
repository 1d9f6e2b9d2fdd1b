package order

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/catalog"
	repo "github.com/Additional-Code/topup/internal/repository/order"
)

// Module provides the order service to Fx, binding the concrete repository,
// provider client and catalog to the interfaces the service consumes.
var Module = fx.Provide(
	NewService,
	func(r *repo.Repository) Repository { return r },
	func(c *atlantic.Client) Gateway { return c },
	func(c *catalog.Catalog) Catalog { return c },
)
