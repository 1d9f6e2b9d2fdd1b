package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/cache"
	"github.com/Additional-Code/topup/internal/clock"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/pkg/errorbank"
)

type fakeSource struct {
	priceCalls int32
	priceFn    func() atlantic.Result[[]atlantic.PriceItem]
	priceCtxFn func(context.Context) atlantic.Result[[]atlantic.PriceItem]
	methodsFn  func() atlantic.Result[[]atlantic.DepositMethod]
}

func (f *fakeSource) PriceList(ctx context.Context) atlantic.Result[[]atlantic.PriceItem] {
	atomic.AddInt32(&f.priceCalls, 1)
	if f.priceCtxFn != nil {
		return f.priceCtxFn(ctx)
	}
	return f.priceFn()
}

func (f *fakeSource) DepositMethods(context.Context) atlantic.Result[[]atlantic.DepositMethod] {
	return f.methodsFn()
}

func okSource() *fakeSource {
	return &fakeSource{
		priceFn: func() atlantic.Result[[]atlantic.PriceItem] {
			return atlantic.Result[[]atlantic.PriceItem]{Outcome: atlantic.OutcomeOK, Value: []atlantic.PriceItem{
				{Code: "TSEL5", Name: "Telkomsel 5K", Category: "Pulsa", Provider: "TELKOMSEL", Price: decimal.NewFromInt(5125), Status: "available"},
				{Code: "ML86", Name: "86 Diamonds", Category: "Games", Provider: "MOBILE LEGENDS", Price: decimal.NewFromInt(19500), Status: "empty"},
			}}
		},
		methodsFn: func() atlantic.Result[[]atlantic.DepositMethod] {
			return atlantic.Result[[]atlantic.DepositMethod]{Outcome: atlantic.OutcomeOK, Value: []atlantic.DepositMethod{
				{Code: "QRIS", Name: "QRIS", Type: "ewallet", Fee: decimal.NewFromInt(200), FeePercent: decimal.RequireFromString("0.7")},
			}}
		},
	}
}

var loadedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestCatalog(src Source, store cache.Store) *Catalog {
	return New(src, store, config.Catalog{CacheKey: "catalog", CacheTTL: time.Hour}, clock.NewFixed(loadedAt), nil)
}

func TestReloadBuildsSnapshot(t *testing.T) {
	c := newTestCatalog(okSource(), nil)
	if c.Ready() {
		t.Fatal("expected empty catalog before reload")
	}

	snap, err := c.Reload(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(snap.Products()) != 2 || !snap.LoadedAt().Equal(loadedAt) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !c.Ready() {
		t.Fatal("expected catalog to be ready")
	}

	t.Run("matches provider or category case-insensitively", func(t *testing.T) {
		if _, ok := c.FindProduct("tsel5", "telkomsel"); !ok {
			t.Fatal("expected provider match")
		}
		if _, ok := c.FindProduct("TSEL5", "PULSA"); !ok {
			t.Fatal("expected category match")
		}
		if _, ok := c.FindProduct("TSEL5", "XL"); ok {
			t.Fatal("expected mismatched provider to miss")
		}
	})

	t.Run("unavailable products are not sold", func(t *testing.T) {
		if _, ok := c.FindProduct("ML86", "Games"); ok {
			t.Fatal("expected unavailable product to miss")
		}
	})

	t.Run("payment methods", func(t *testing.T) {
		m, ok := c.FindPaymentMethod("qris")
		if !ok || !m.FlatFee.Equal(decimal.NewFromInt(200)) {
			t.Fatalf("unexpected method %+v (%v)", m, ok)
		}
	})
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	src := okSource()
	c := newTestCatalog(src, nil)
	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	before := c.Snapshot()

	src.priceFn = func() atlantic.Result[[]atlantic.PriceItem] {
		return atlantic.Result[[]atlantic.PriceItem]{Outcome: atlantic.OutcomeTransport, Err: errors.New("dial tcp: refused")}
	}
	_, err := c.Reload(context.Background())
	if !errorbank.IsKind(err, errorbank.KindUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if c.Snapshot() != before {
		t.Fatal("expected previous snapshot to stay current")
	}

	src.priceFn = func() atlantic.Result[[]atlantic.PriceItem] {
		return atlantic.Result[[]atlantic.PriceItem]{Outcome: atlantic.OutcomeRejected, Message: "invalid key"}
	}
	if _, err := c.Reload(context.Background()); !errorbank.IsKind(err, errorbank.KindUpstreamRejected) {
		t.Fatalf("expected upstream rejected, got %v", err)
	}
}

func TestConcurrentReloadsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	src := okSource()
	inner := src.priceFn
	src.priceFn = func() atlantic.Result[[]atlantic.PriceItem] {
		<-release
		return inner()
	}
	c := newTestCatalog(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Reload(context.Background()); err != nil {
				t.Errorf("reload: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls := atomic.LoadInt32(&src.priceCalls); calls < 1 || calls > 5 {
		t.Fatalf("unexpected fetch count %d", calls)
	}
	if !c.Ready() {
		t.Fatal("expected catalog to be ready")
	}
}

func TestCancelledCallerDoesNotFailSharedReload(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := okSource()
	inner := src.priceFn
	var once sync.Once
	src.priceCtxFn = func(ctx context.Context) atlantic.Result[[]atlantic.PriceItem] {
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			return atlantic.Result[[]atlantic.PriceItem]{
				Outcome: atlantic.OutcomeTransport,
				Err:     &atlantic.TransportError{Endpoint: "/layanan/price_list", Err: ctx.Err()},
			}
		case <-release:
			return inner()
		}
	}
	c := newTestCatalog(src, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Reload(firstCtx)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		_, err := c.Reload(context.Background())
		secondErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to stop waiting, got %v", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("expected the shared reload to succeed, got %v", err)
	}
	if !c.Ready() || atomic.LoadInt32(&src.priceCalls) != 1 {
		t.Fatalf("expected one shared fetch, ready=%v calls=%d", c.Ready(), atomic.LoadInt32(&src.priceCalls))
	}
}

func TestWarmPrefersCachedSnapshot(t *testing.T) {
	store := cache.NewMemoryStore(0)

	first := newTestCatalog(okSource(), store)
	if _, err := first.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	src := okSource()
	second := newTestCatalog(src, store)
	if err := second.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if atomic.LoadInt32(&src.priceCalls) != 0 {
		t.Fatal("expected warm to use the cached snapshot")
	}
	p, ok := second.FindProduct("TSEL5", "TELKOMSEL")
	if !ok || !p.Price.Equal(decimal.NewFromInt(5125)) {
		t.Fatalf("unexpected cached product %+v (%v)", p, ok)
	}
	if !second.Snapshot().LoadedAt().Equal(loadedAt) {
		t.Fatalf("expected loaded_at to survive the cache, got %s", second.Snapshot().LoadedAt())
	}
}

func TestWarmFallsBackToProvider(t *testing.T) {
	src := okSource()
	c := newTestCatalog(src, cache.NewMemoryStore(0))
	if err := c.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if atomic.LoadInt32(&src.priceCalls) != 1 {
		t.Fatalf("expected one provider fetch, got %d", src.priceCalls)
	}
}

func TestProductsBy(t *testing.T) {
	snap := NewSnapshot([]Product{
		{Code: "A", Provider: "TELKOMSEL", Category: "Pulsa"},
		{Code: "B", Provider: "XL", Category: "Pulsa"},
		{Code: "C", Provider: "XL", Category: "Data"},
	}, nil, loadedAt)

	if got := snap.ProductsBy("", ""); len(got) != 3 {
		t.Fatalf("expected all products, got %d", len(got))
	}
	if got := snap.ProductsBy("xl", ""); len(got) != 2 {
		t.Fatalf("expected 2 xl products, got %d", len(got))
	}
	if got := snap.ProductsBy("XL", "data"); len(got) != 1 || got[0].Code != "C" {
		t.Fatalf("unexpected filter result %+v", got)
	}
}
