package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/cache"
	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/clock"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/database"
	"github.com/Additional-Code/topup/internal/logger"
	"github.com/Additional-Code/topup/internal/messaging"
	"github.com/Additional-Code/topup/internal/observability"
	repositoryorder "github.com/Additional-Code/topup/internal/repository/order"
	grpcserver "github.com/Additional-Code/topup/internal/server/grpc"
	httpserver "github.com/Additional-Code/topup/internal/server/http"
	serviceorder "github.com/Additional-Code/topup/internal/service/order"
	transporthttp "github.com/Additional-Code/topup/internal/transport/http"
	"github.com/Additional-Code/topup/internal/worker"
	workerorder "github.com/Additional-Code/topup/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	clock.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	atlantic.Module,
	catalog.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP

// FxLogger routes Fx lifecycle events through the application logger.
var FxLogger = fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})
