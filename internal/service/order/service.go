package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/cache"
	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/clock"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/messaging"
	repo "github.com/Additional-Code/topup/internal/repository/order"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/topup/service/order")

// Repository is the order store used by the service.
type Repository interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	Find(ctx context.Context, id string) (*entity.Order, error)
	Update(ctx context.Context, order *entity.Order, expectedVersion int64) error
	List(ctx context.Context, filter repo.Filter) ([]entity.Order, int, error)
}

// Gateway is the payment and fulfilment provider.
type Gateway interface {
	OpenDeposit(ctx context.Context, req atlantic.DepositRequest) atlantic.Result[atlantic.Deposit]
	DepositStatus(ctx context.Context, depositID string) atlantic.Result[atlantic.Deposit]
	CancelDeposit(ctx context.Context, depositID string) atlantic.Result[atlantic.Deposit]
	CreateTransaction(ctx context.Context, req atlantic.TransactionRequest) atlantic.Result[atlantic.Transaction]
	TransactionStatus(ctx context.Context, transactionID string) atlantic.Result[atlantic.Transaction]
}

// Catalog resolves products and payment methods at order creation.
type Catalog interface {
	FindProduct(code, providerOrCategory string) (catalog.Product, bool)
	FindPaymentMethod(code string) (catalog.PaymentMethod, bool)
}

// Service runs the order lifecycle: creation, reconciliation and cancellation.
type Service struct {
	repo      Repository
	gateway   Gateway
	catalog   Catalog
	locker    cache.Locker
	cache     cache.Store
	cacheTTL  time.Duration
	lockWait  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	publisher messaging.Client
	metrics   *metrics
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository Repository
	Gateway    Gateway
	Catalog    Catalog
	Locker     cache.Locker
	Cache      cache.Store
	Config     config.Config
	Clock      clock.Clock
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	locker := p.Locker
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	lockWait := p.Config.Orders.LockWait
	if lockWait <= 0 {
		lockWait = 10 * time.Second
	}
	return &Service{
		repo:      p.Repository,
		gateway:   p.Gateway,
		catalog:   p.Catalog,
		locker:    locker,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		lockWait:  lockWait,
		clock:     clk,
		logger:    logger.Named("orders"),
		publisher: p.Publisher,
		metrics:   newMetrics(),
	}
}

// Get retrieves an order by id, consulting cache when available. It never contacts the provider.
func (s *Service) Get(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.String("id", id), zap.Error(err))
	}

	order, err := s.repo.Find(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, loadError(err)
	}

	s.refreshCache(ctx, order)
	return order, nil
}

// List returns a page of orders and the total number of matches.
func (s *Service) List(ctx context.Context, filter repo.Filter) ([]entity.Order, int, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, 0, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, total, nil
}

// withOrderLock runs fn while holding the per-order lock.
func (s *Service) withOrderLock(ctx context.Context, id string, fn func(context.Context) (*entity.Order, error)) (*entity.Order, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	lease, err := s.locker.Acquire(lockCtx, "order:"+id)
	cancel()
	if err != nil {
		if errors.Is(err, cache.ErrLockTimeout) {
			return nil, errorbank.Conflict("order is being processed by another request", errorbank.WithDetail("order_id", id))
		}
		return nil, errorbank.Internal("failed to lock order", errorbank.WithCause(err))
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("order lock release failed", zap.String("id", id), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// load reads the authoritative copy of an order.
func (s *Service) load(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, loadError(err)
	}
	return order, nil
}

// save persists order if the stored copy is still at expectedVersion.
func (s *Service) save(ctx context.Context, order *entity.Order, expectedVersion int64) error {
	if err := s.repo.Update(ctx, order, expectedVersion); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return errorbank.Conflict("order was modified concurrently", errorbank.WithDetail("order_id", order.ID))
		}
		return errorbank.Internal("failed to save order", errorbank.WithCause(err))
	}
	s.refreshCache(ctx, order)
	return nil
}

func loadError(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound("order not found")
	}
	return errorbank.Internal("failed to load order", errorbank.WithCause(err))
}

// CacheKey is the read-cache key for an order.
func CacheKey(id string) string {
	return "orders:" + id
}

func (s *Service) getFromCache(ctx context.Context, id string) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, CacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) refreshCache(ctx context.Context, order *entity.Order) {
	if s.cache == nil || order == nil {
		return
	}
	bytes, err := json.Marshal(order)
	if err == nil {
		err = s.cache.Set(ctx, CacheKey(order.ID), bytes, s.cacheTTL)
	}
	if err != nil {
		s.logger.Warn("orders cache write failed", zap.String("id", order.ID), zap.Error(err))
	}
}
