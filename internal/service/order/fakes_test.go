package order

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/topup/internal/atlantic"
	"github.com/Additional-Code/topup/internal/cache"
	"github.com/Additional-Code/topup/internal/catalog"
	"github.com/Additional-Code/topup/internal/clock"
	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/messaging"
	repo "github.com/Additional-Code/topup/internal/repository/order"
)

var testNow = time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

type fakeRepository struct {
	mu       sync.Mutex
	orders   map[string]*entity.Order
	createFn func(*entity.Order) error
	updateFn func(*entity.Order) error
	updates  int
}

func newFakeRepository(seed ...*entity.Order) *fakeRepository {
	r := &fakeRepository{orders: make(map[string]*entity.Order)}
	for _, o := range seed {
		if o.Version == 0 {
			o.Version = 1
		}
		r.orders[o.ID] = o.Clone()
	}
	return r
}

func (r *fakeRepository) Create(_ context.Context, o *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createFn != nil {
		if err := r.createFn(o); err != nil {
			return err
		}
	}
	if _, ok := r.orders[o.ID]; ok {
		return repo.ErrDuplicate
	}
	o.Version = 1
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *fakeRepository) GetByID(_ context.Context, id string) (*entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *fakeRepository) Find(ctx context.Context, id string) (*entity.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeRepository) Update(_ context.Context, o *entity.Order, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateFn != nil {
		if err := r.updateFn(o); err != nil {
			return err
		}
	}
	stored, ok := r.orders[o.ID]
	if !ok || stored.Version != expectedVersion {
		return repo.ErrVersionConflict
	}
	o.Version = expectedVersion + 1
	r.orders[o.ID] = o.Clone()
	r.updates++
	return nil
}

func (r *fakeRepository) List(_ context.Context, f repo.Filter) ([]entity.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f = f.Normalize()
	var out []entity.Order
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Target != "" && o.Target != f.Target {
			continue
		}
		out = append(out, *o.Clone())
	}
	return out, len(out), nil
}

func (r *fakeRepository) stored(t *testing.T, id string) *entity.Order {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		t.Fatalf("order %s not stored", id)
	}
	return o.Clone()
}

func (r *fakeRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fakeGateway struct {
	t  *testing.T
	mu sync.Mutex

	calls map[string]int

	openFn          func(atlantic.DepositRequest) atlantic.Result[atlantic.Deposit]
	depositStatusFn func(string) atlantic.Result[atlantic.Deposit]
	cancelFn        func(string) atlantic.Result[atlantic.Deposit]
	createTxFn      func(atlantic.TransactionRequest) atlantic.Result[atlantic.Transaction]
	txStatusFn      func(string) atlantic.Result[atlantic.Transaction]
}

func newFakeGateway(t *testing.T) *fakeGateway {
	return &fakeGateway{t: t, calls: make(map[string]int)}
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	g.calls[name]++
	g.mu.Unlock()
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) unexpected(name string) {
	g.t.Errorf("unexpected provider call %s", name)
}

func (g *fakeGateway) OpenDeposit(_ context.Context, req atlantic.DepositRequest) atlantic.Result[atlantic.Deposit] {
	g.record("open")
	if g.openFn == nil {
		g.unexpected("OpenDeposit")
		return transportResult[atlantic.Deposit]()
	}
	return g.openFn(req)
}

func (g *fakeGateway) DepositStatus(_ context.Context, id string) atlantic.Result[atlantic.Deposit] {
	g.record("deposit_status")
	if g.depositStatusFn == nil {
		g.unexpected("DepositStatus")
		return transportResult[atlantic.Deposit]()
	}
	return g.depositStatusFn(id)
}

func (g *fakeGateway) CancelDeposit(_ context.Context, id string) atlantic.Result[atlantic.Deposit] {
	g.record("cancel")
	if g.cancelFn == nil {
		g.unexpected("CancelDeposit")
		return transportResult[atlantic.Deposit]()
	}
	return g.cancelFn(id)
}

func (g *fakeGateway) CreateTransaction(_ context.Context, req atlantic.TransactionRequest) atlantic.Result[atlantic.Transaction] {
	g.record("create_tx")
	if g.createTxFn == nil {
		g.unexpected("CreateTransaction")
		return transportResult[atlantic.Transaction]()
	}
	return g.createTxFn(req)
}

func (g *fakeGateway) TransactionStatus(_ context.Context, id string) atlantic.Result[atlantic.Transaction] {
	g.record("tx_status")
	if g.txStatusFn == nil {
		g.unexpected("TransactionStatus")
		return transportResult[atlantic.Transaction]()
	}
	return g.txStatusFn(id)
}

func okDeposit(id, status string, details map[string]any) atlantic.Result[atlantic.Deposit] {
	return atlantic.Result[atlantic.Deposit]{
		Outcome: atlantic.OutcomeOK,
		Value:   atlantic.Deposit{ID: id, Status: status, Details: details},
	}
}

func okTransaction(id, status string, details map[string]any) atlantic.Result[atlantic.Transaction] {
	return atlantic.Result[atlantic.Transaction]{
		Outcome: atlantic.OutcomeOK,
		Value:   atlantic.Transaction{ID: id, Status: status, Details: details},
	}
}

func rejectedResult[T any](msg string) atlantic.Result[T] {
	return atlantic.Result[T]{Outcome: atlantic.OutcomeRejected, Message: msg}
}

func transportResult[T any]() atlantic.Result[T] {
	return atlantic.Result[T]{
		Outcome: atlantic.OutcomeTransport,
		Err:     &atlantic.TransportError{Endpoint: "/test", Err: errors.New("connection refused")},
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *fakePublisher) Publish(_ context.Context, _ []byte, value []byte) error {
	var ev OrderEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePublisher) Topic() string { return "topup.orders" }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func testCatalog() *catalog.Snapshot {
	return catalog.NewSnapshot(
		[]catalog.Product{
			{Code: "TSEL10", Name: "Telkomsel 10K", Category: "Pulsa", Provider: "TELKOMSEL", Price: decimal.NewFromInt(10000), Available: true},
			{Code: "OFF1", Name: "Retired", Category: "Pulsa", Provider: "TELKOMSEL", Price: decimal.NewFromInt(1000), Available: false},
		},
		[]catalog.PaymentMethod{
			{Code: "QRIS", Name: "QRIS", Type: "ewallet", FlatFee: decimal.NewFromInt(500), FeePercent: decimal.RequireFromString("1.5"), Available: true},
			{Code: "BCA", Name: "BCA VA", Type: "bank", FlatFee: decimal.NewFromInt(4000), Min: decimal.NewFromInt(20000), Available: true},
		},
		testNow,
	)
}

type harness struct {
	svc       *Service
	repo      *fakeRepository
	gateway   *fakeGateway
	publisher *fakePublisher
	store     *cache.MemoryStore
}

func newHarness(t *testing.T, seed ...*entity.Order) *harness {
	t.Helper()
	h := &harness{
		repo:      newFakeRepository(seed...),
		gateway:   newFakeGateway(t),
		publisher: &fakePublisher{},
		store:     cache.NewMemoryStore(0),
	}
	h.svc = NewService(Params{
		Repository: h.repo,
		Gateway:    h.gateway,
		Catalog:    testCatalog(),
		Locker:     cache.NewLocalLocker(),
		Cache:      h.store,
		Config:     config.Config{Orders: config.Orders{LockWait: time.Second}},
		Clock:      clock.NewFixed(testNow),
		Publisher:  h.publisher,
	})
	return h
}

func seedOrder(id, status string) *entity.Order {
	created := testNow.Add(-time.Hour)
	return &entity.Order{
		ID:                id,
		DepositReffID:     "DEP-" + id,
		ProductCode:       "TSEL10",
		ProductPrice:      decimal.NewFromInt(10000),
		ProviderName:      "TELKOMSEL",
		PaymentMethodCode: "QRIS",
		Target:            "08123456789",
		PaymentMethodFee:  decimal.NewFromInt(650),
		GlobalAdminFee:    decimal.NewFromInt(200),
		TotalAdminFee:     decimal.NewFromInt(850),
		TotalAmountDue:    decimal.NewFromInt(10850),
		Status:            status,
		AtlanticDepositID: "D-" + id,
		DepositDetails:    map[string]any{"status": "pending"},
		Version:           1,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}
