package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Additional-Code/topup/internal/dto"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()

	paths := [][]string{
		{"start"},
		{"worker", "run"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"seed"},
		{"catalog", "reload"},
		{"order", "show"},
		{"order", "reconcile"},
		{"order", "cancel"},
	}
	for _, path := range paths {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			cmd, rest, err := root.Find(path)
			if err != nil || len(rest) != 0 {
				t.Fatalf("find %v: %v (rest %v)", path, err, rest)
			}
			if cmd.Name() != path[len(path)-1] {
				t.Fatalf("expected %s, got %s", path[len(path)-1], cmd.Name())
			}
		})
	}

	if cmd, _, err := root.Find([]string{"module", "create"}); err == nil && cmd != root {
		t.Fatal("module scaffolding should not be available")
	}
}

func TestOrderCommandsRequireID(t *testing.T) {
	for _, sub := range []string{"show", "reconcile", "cancel"} {
		t.Run(sub, func(t *testing.T) {
			root := NewRootCommand()
			root.SetArgs([]string{"order", sub})
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			if err := root.Execute(); err == nil {
				t.Fatal("expected argument error")
			}
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := printJSON(&buf, dto.CatalogReloadResponse{
		Products:       2,
		PaymentMethods: 1,
		LoadedAt:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	want := "{\n  \"products\": 2,\n  \"payment_methods\": 1,\n  \"loaded_at\": \"2026-05-01T00:00:00Z\"\n}\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}
