package seeder

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/clock"
	"github.com/Additional-Code/topup/internal/database"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/lifecycle"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	clock  clock.Clock
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, clk clock.Clock, logger *zap.Logger) *Seeder {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Seeder{db: conns.Writer, clock: clk, logger: logger}
}

type sample struct {
	id       string
	status   lifecycle.Status
	product  string
	name     string
	provider string
	price    int64
	age      time.Duration
}

var samples = []sample{
	{id: "seed-0001", status: lifecycle.StatusOrderCompleted, product: "TSEL10", name: "Telkomsel 10.000", provider: "TELKOMSEL", price: 10250, age: 72 * time.Hour},
	{id: "seed-0002", status: lifecycle.StatusPaymentCancelled, product: "XL25", name: "XL 25.000", provider: "XL", price: 25100, age: 48 * time.Hour},
	{id: "seed-0003", status: lifecycle.StatusPaymentExpired, product: "ML86", name: "Mobile Legends 86 Diamonds", provider: "MOBILE LEGENDS", price: 20500, age: 30 * time.Hour},
	{id: "seed-0004", status: lifecycle.StatusOrderFailed, product: "TSEL10", name: "Telkomsel 10.000", provider: "TELKOMSEL", price: 10250, age: 6 * time.Hour},
}

// Orders inserts historical sample orders, skipping ones already present.
func (s *Seeder) Orders(ctx context.Context) error {
	now := s.clock.Now()
	adminFee := decimal.NewFromInt(850)

	inserted := 0
	for _, smp := range samples {
		created := now.Add(-smp.age)
		price := decimal.NewFromInt(smp.price)
		order := &entity.Order{
			ID:                smp.id,
			DepositReffID:     "DEP-" + strings.ToUpper(smp.id),
			ProductCode:       smp.product,
			ProductName:       smp.name,
			ProductPrice:      price,
			ProviderName:      smp.provider,
			PaymentMethodCode: "QRIS",
			PaymentMethodName: "QRIS",
			PaymentMethodType: "ewallet",
			Target:            "081200000000",
			PaymentMethodFee:  decimal.NewFromInt(650),
			GlobalAdminFee:    decimal.NewFromInt(200),
			TotalAdminFee:     adminFee,
			TotalAmountDue:    price.Add(adminFee),
			Status:            string(smp.status),
			AtlanticDepositID: "SEED-DEP-" + smp.id,
			DepositDetails:    map[string]any{"seeded": true},
			Version:           1,
			CreatedAt:         created,
			UpdatedAt:         created.Add(15 * time.Minute),
		}

		res, err := s.db.NewInsert().Model(order).Ignore().Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("inserted", inserted), zap.Int("samples", len(samples)))
	}
	return nil
}
