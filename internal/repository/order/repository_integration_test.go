//go:build integration

package order_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/database"
	"github.com/Additional-Code/topup/internal/entity"
	"github.com/Additional-Code/topup/internal/migration"
	orderrepo "github.com/Additional-Code/topup/internal/repository/order"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("topup"),
		testpostgres.WithUsername("topup"),
		testpostgres.WithPassword("topup"),
		testpostgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return dsn
}

func setupRepository(t *testing.T, driver, dsn string) *orderrepo.Repository {
	t.Helper()

	cfg := config.Config{Database: config.Database{Driver: driver, WriterDSN: dsn, ReaderDSN: dsn, MaxOpenConns: 5}}
	lc := fxtest.NewLifecycle(t)
	conns, err := database.New(lc, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	migrator, err := migration.New(cfg, conns, zap.NewNop())
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return orderrepo.NewRepository(conns)
}

func TestRepositoryPostgres(t *testing.T) {
	dsn := startPostgres(t)

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			repo := setupRepository(t, driver, dsn)
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			id := driver + "-order"

			o := &entity.Order{
				ID:                id,
				DepositReffID:     "DEP-" + id,
				ProductCode:       "TSEL5",
				ProductPrice:      decimal.NewFromInt(10000),
				PaymentMethodCode: "QRIS",
				Target:            "08123456789",
				PaymentMethodFee:  decimal.RequireFromString("650"),
				GlobalAdminFee:    decimal.RequireFromString("200"),
				TotalAdminFee:     decimal.RequireFromString("850"),
				TotalAmountDue:    decimal.RequireFromString("10850"),
				Status:            "PENDING_PAYMENT",
				DepositDetails:    map[string]any{"status": "pending", "qr_string": "000201"},
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := repo.Create(ctx, o); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := repo.Create(ctx, o); !errors.Is(err, orderrepo.ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got %v", err)
			}

			stored, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !stored.TotalAmountDue.Equal(o.TotalAmountDue) || stored.DepositDetails["qr_string"] != "000201" {
				t.Fatalf("unexpected stored order %+v", stored)
			}

			stored.Status = "PAYMENT_PROCESSING"
			if err := repo.Update(ctx, stored, stored.Version); err != nil {
				t.Fatalf("update: %v", err)
			}

			passThrough := strings.Repeat("PROVIDER_REVIEW_", 8)
			stored.Status = passThrough
			stored.TransactionReffID = "TRX-" + id + "-1"
			stored.TransactionReffSent = true
			if err := repo.Update(ctx, stored, stored.Version); err != nil {
				t.Fatalf("update with long provider status: %v", err)
			}
			reread, err := repo.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if reread.Status != passThrough || !reread.TransactionReffSent {
				t.Fatalf("unexpected stored status %q sent=%v", reread.Status, reread.TransactionReffSent)
			}
			o.Status = "PAYMENT_EXPIRED"
			if err := repo.Update(ctx, o, 1); !errors.Is(err, orderrepo.ErrVersionConflict) {
				t.Fatalf("expected ErrVersionConflict, got %v", err)
			}
		})
	}
}
