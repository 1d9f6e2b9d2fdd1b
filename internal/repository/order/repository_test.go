package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/database"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/migration"
)

func newSQLiteRepository(t *testing.T) *Repository {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	conns := &database.Connections{Writer: db, Reader: db, Driver: "sqlite"}
	migrator, err := migration.New(config.Config{Database: config.Database{Driver: "sqlite"}}, conns, zap.NewNop())
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(conns)
}

func sampleOrder(id string, created time.Time) *entity.Order {
	return &entity.Order{
		ID:                id,
		DepositReffID:     "DEP-" + id,
		ProductCode:       "TSEL5",
		ProductName:       "Telkomsel 5K",
		ProductPrice:      decimal.NewFromInt(10000),
		ProviderName:      "TELKOMSEL",
		PaymentMethodCode: "QRIS",
		Target:            "08123456789",
		PaymentMethodFee:  decimal.NewFromInt(650),
		GlobalAdminFee:    decimal.NewFromInt(200),
		TotalAdminFee:     decimal.NewFromInt(850),
		TotalAmountDue:    decimal.NewFromInt(10850),
		Status:            "PENDING_PAYMENT",
		AtlanticDepositID: "dep-" + id,
		DepositDetails:    map[string]any{"status": "pending"},
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	o := sampleOrder("o-1", now)
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Version != 1 {
		t.Fatalf("expected version 1, got %d", o.Version)
	}

	got, err := repo.GetByID(ctx, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.TotalAmountDue.Equal(decimal.NewFromInt(10850)) {
		t.Errorf("unexpected total %s", got.TotalAmountDue)
	}
	if got.DepositDetails["status"] != "pending" {
		t.Errorf("unexpected details %v", got.DepositDetails)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	t.Run("duplicate id", func(t *testing.T) {
		dup := sampleOrder("o-1", now)
		dup.DepositReffID = "DEP-other"
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("duplicate deposit reference", func(t *testing.T) {
		dup := sampleOrder("o-2", now)
		dup.DepositReffID = o.DepositReffID
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestUpdateCompareAndSwap(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, sampleOrder("o-1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.GetByID(ctx, "o-1")
	second, _ := repo.GetByID(ctx, "o-1")

	first.Status = "PAYMENT_SUCCESSFUL_PROCESSING_ORDER"
	if err := repo.Update(ctx, first, first.Version); err != nil {
		t.Fatalf("update: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}

	second.Status = "PAYMENT_EXPIRED"
	if err := repo.Update(ctx, second, second.Version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if second.Version != 1 {
		t.Fatalf("expected stale copy to keep its version, got %d", second.Version)
	}

	stored, _ := repo.GetByID(ctx, "o-1")
	if stored.Status != "PAYMENT_SUCCESSFUL_PROCESSING_ORDER" {
		t.Fatalf("expected first writer to win, got %s", stored.Status)
	}
}

func TestList(t *testing.T) {
	repo := newSQLiteRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		o := sampleOrder(fmt.Sprintf("o-%d", i), base.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			o.Status = "ORDER_COMPLETED"
		}
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	orders, total, err := repo.List(ctx, Filter{Status: "order_completed", PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(orders) != 2 {
		t.Fatalf("expected 2 of 3 completed orders, got %d of %d", len(orders), total)
	}
	if orders[0].ID != "o-4" {
		t.Fatalf("expected newest first, got %s", orders[0].ID)
	}

	orders, _, err = repo.List(ctx, Filter{Status: "ORDER_COMPLETED", Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o-0" {
		t.Fatalf("unexpected second page %+v", orders)
	}
}

func TestFilterNormalize(t *testing.T) {
	f := Filter{Page: -1, PageSize: 1000, Status: " pending_payment "}.Normalize()
	if f.Page != 1 || f.PageSize != maxPageSize || f.Status != "PENDING_PAYMENT" {
		t.Fatalf("unexpected normalized filter %+v", f)
	}
	if d := (Filter{}).Normalize(); d.PageSize != defaultPageSize {
		t.Fatalf("expected default page size, got %d", d.PageSize)
	}
}
