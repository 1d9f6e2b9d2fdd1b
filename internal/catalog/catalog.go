package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/cache"
	"github.com/Additional-Code/topup/internal/clock"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

var catalogTracer = otel.Tracer("github.com/Additional-Code/topup/catalog")

const reloadTimeout = time.Minute

// Module provides the catalog and loads it when the application starts.
var Module = fx.Provide(Provide)

// Source lists the provider's products and payment methods.
type Source interface {
	PriceList(ctx context.Context) atlantic.Result[[]atlantic.PriceItem]
	DepositMethods(ctx context.Context) atlantic.Result[[]atlantic.DepositMethod]
}

// Catalog owns the current Snapshot. Reloads build a new Snapshot and swap it in
// whole; a failed reload keeps the previous one.
type Catalog struct {
	source   Source
	store    cache.Store
	cacheKey string
	cacheTTL time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// New constructs an empty Catalog.
func New(source Source, store cache.Store, cfg config.Catalog, clk clock.Clock, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	c := &Catalog{
		source:   source,
		store:    store,
		cacheKey: cfg.CacheKey,
		cacheTTL: cfg.CacheTTL,
		clock:    clk,
		logger:   logger.Named("catalog"),
	}
	c.current.Store(emptySnapshot())
	return c
}

// Provide wires the Catalog into Fx and warms it on start when configured.
func Provide(lc fx.Lifecycle, cfg config.Config, client *atlantic.Client, store cache.Store, clk clock.Clock, logger *zap.Logger) *Catalog {
	c := New(client, store, cfg.Catalog, clk, logger)
	if cfg.Catalog.LoadOnStart {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// The service stays up without a catalog; order creation reports
				// not-found until a reload succeeds.
				if err := c.Warm(ctx); err != nil {
					c.logger.Error("catalog warm-up failed", zap.Error(err))
				}
				return nil
			},
		})
	}
	return c
}

// Snapshot returns the current point-in-time view. Never nil.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Ready reports whether a non-empty snapshot is loaded.
func (c *Catalog) Ready() bool {
	return !c.Snapshot().Empty()
}

// FindProduct looks up a product in the current snapshot.
func (c *Catalog) FindProduct(code, providerOrCategory string) (Product, bool) {
	return c.Snapshot().FindProduct(code, providerOrCategory)
}

// FindPaymentMethod looks up a payment method in the current snapshot.
func (c *Catalog) FindPaymentMethod(code string) (PaymentMethod, bool) {
	return c.Snapshot().FindPaymentMethod(code)
}

// Warm restores the snapshot mirrored in the cache store, falling back to the provider.
func (c *Catalog) Warm(ctx context.Context) error {
	if snap, err := c.fromStore(ctx); err == nil {
		c.current.Store(snap)
		c.logger.Info("catalog restored from cache",
			zap.Int("products", len(snap.Products())),
			zap.Time("loaded_at", snap.LoadedAt()),
		)
		return nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("catalog cache read failed", zap.Error(err))
	}

	_, err := c.Reload(ctx)
	return err
}

// Reload fetches a fresh snapshot from the provider. Concurrent callers share a
// single provider round-trip, detached from the caller that started it; each
// caller stops waiting when its own ctx ends.
func (c *Catalog) Reload(ctx context.Context) (*Snapshot, error) {
	ch := c.group.DoChan("reload", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
		defer cancel()
		return c.reload(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("catalog reload shared with concurrent caller")
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *Catalog) reload(ctx context.Context) (*Snapshot, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.Reload")
	defer span.End()

	prices := c.source.PriceList(ctx)
	if err := upstreamError("price list", prices.Outcome, prices.Failure()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "price list failed")
		return nil, err
	}
	methods := c.source.DepositMethods(ctx)
	if err := upstreamError("payment methods", methods.Outcome, methods.Failure()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment methods failed")
		return nil, err
	}

	products := make([]Product, 0, len(prices.Value))
	for _, item := range prices.Value {
		products = append(products, fromPriceItem(item))
	}
	channels := make([]PaymentMethod, 0, len(methods.Value))
	for _, m := range methods.Value {
		channels = append(channels, fromDepositMethod(m))
	}

	snap := NewSnapshot(products, channels, c.clock.Now())
	c.current.Store(snap)
	span.SetAttributes(
		attribute.Int("catalog.products", len(products)),
		attribute.Int("catalog.payment_methods", len(channels)),
	)

	if err := c.toStore(ctx, snap); err != nil {
		c.logger.Warn("catalog cache write failed", zap.Error(err))
	}

	c.logger.Info("catalog reloaded",
		zap.Int("products", len(products)),
		zap.Int("payment_methods", len(channels)),
	)
	return snap, nil
}

func (c *Catalog) fromStore(ctx context.Context) (*Snapshot, error) {
	if c.store == nil || c.cacheKey == "" {
		return nil, cache.ErrCacheMiss
	}
	raw, err := c.store.Get(ctx, c.cacheKey)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Products) == 0 {
		return nil, cache.ErrCacheMiss
	}
	return NewSnapshot(doc.Products, doc.PaymentMethods, doc.LoadedAt), nil
}

func (c *Catalog) toStore(ctx context.Context, snap *Snapshot) error {
	if c.store == nil || c.cacheKey == "" {
		return nil
	}
	raw, err := json.Marshal(snap.document())
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.cacheKey, raw, c.cacheTTL)
}

func upstreamError(what string, outcome atlantic.Outcome, failure error) error {
	switch outcome {
	case atlantic.OutcomeOK:
		return nil
	case atlantic.OutcomeRejected:
		return errorbank.UpstreamRejected("provider rejected "+what+" request", errorbank.WithCause(failure))
	default:
		return errorbank.UpstreamUnavailable("provider unavailable while loading "+what, errorbank.WithCause(failure))
	}
}

func fromPriceItem(item atlantic.PriceItem) Product {
	return Product{
		Code:      item.Code,
		Name:      item.Name,
		Category:  item.Category,
		Provider:  item.Provider,
		Type:      item.Type,
		Price:     item.Price,
		Available: available(item.Status),
		ImageURL:  item.ImageURL,
	}
}

func fromDepositMethod(m atlantic.DepositMethod) PaymentMethod {
	return PaymentMethod{
		Code:       m.Code,
		Name:       m.Name,
		Type:       m.Type,
		Min:        m.Min,
		Max:        m.Max,
		FlatFee:    m.Fee,
		FeePercent: m.FeePercent,
		Available:  available(m.Status),
		ImageURL:   m.ImageURL,
	}
}

// available treats a missing status as on sale.
func available(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "available", "aktif", "active", "1", "true":
		return true
	default:
		return false
	}
}
