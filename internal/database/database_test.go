package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/topup/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "topup.db")
	conns, err := Open(config.Database{Driver: "sqlite", WriterDSN: dsn, ReaderDSN: dsn, MaxOpenConns: 10}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conns.Close() })

	if conns.Reader != conns.Writer {
		t.Fatal("expected reader to share the writer pool")
	}
	if got := conns.Writer.DB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected sqlite pool capped at 1, got %d", got)
	}
	if err := conns.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Database
	}{
		{name: "unknown driver", cfg: config.Database{Driver: "oracle", WriterDSN: "x"}},
		{name: "empty dsn", cfg: config.Database{Driver: "sqlite"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Open(tc.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestQueryLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	hook := queryLogger{logger: zap.New(core), slow: 100 * time.Millisecond}

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	if logs.Len() != 0 {
		t.Fatalf("fast query should not be logged, got %d entries", logs.Len())
	}

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT pg_sleep(1)", StartTime: time.Now().Add(-time.Second)})
	if entries := logs.FilterMessage("slow query").All(); len(entries) != 1 {
		t.Fatalf("expected slow query entry, got %d", len(entries))
	}
}
