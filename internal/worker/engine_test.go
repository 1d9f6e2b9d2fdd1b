package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/topup/internal/config"
	"github.com/Additional-Code/topup/internal/messaging"
)

// fakeClient delivers its queued messages once, then blocks until ctx is done.
type fakeClient struct {
	mu       sync.Mutex
	queue    []messaging.Message
	results  []error
	consumes atomic.Int32
}

func (c *fakeClient) Publish(context.Context, []byte, []byte) error { return nil }

func (c *fakeClient) Topic() string { return "topup.orders" }

func (c *fakeClient) Consume(ctx context.Context, handler messaging.Handler) error {
	c.consumes.Add(1)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			break
		}
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		err := handler(ctx, msg)
		c.mu.Lock()
		c.results = append(c.results, err)
		c.mu.Unlock()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeClient) handled() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.results...)
}

func enabledConfig() config.Config {
	return config.Config{Messaging: config.Messaging{
		Enabled: true,
		Workers: config.Worker{Enabled: true, Concurrency: 1, PollInterval: 10 * time.Millisecond},
	}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineRoutesByTopic(t *testing.T) {
	client := &fakeClient{queue: []messaging.Message{
		{Topic: "topup.orders", Key: []byte("ord-1")},
		{Topic: "other", Key: []byte("x")},
		{Topic: "topup.orders", Key: []byte("ord-2")},
	}}

	var mu sync.Mutex
	var keys []string
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{{
			Topic: "topup.orders",
			Handler: func(_ context.Context, msg messaging.Message) error {
				mu.Lock()
				keys = append(keys, string(msg.Key))
				mu.Unlock()
				return nil
			},
		}},
	})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return len(client.handled()) == 3 })
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 || keys[0] != "ord-1" || keys[1] != "ord-2" {
		t.Fatalf("unexpected routed keys %v", keys)
	}
	for i, err := range client.handled() {
		if err != nil {
			t.Fatalf("message %d: unexpected error %v", i, err)
		}
	}
}

func TestEngineReportsPanicsAsFailures(t *testing.T) {
	client := &fakeClient{queue: []messaging.Message{{Topic: "topup.orders"}}}
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{{
			Topic:   "topup.orders",
			Handler: func(context.Context, messaging.Message) error { panic("boom") },
		}},
	})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return len(client.handled()) == 1 })
	_ = engine.Stop(context.Background())

	if err := client.handled()[0]; err == nil {
		t.Fatal("expected panic to surface as a handler error")
	}
}

func TestEngineSkipsWhenDisabledOrEmpty(t *testing.T) {
	handler := HandlerRegistration{Topic: "topup.orders", Handler: func(context.Context, messaging.Message) error { return nil }}

	cases := []struct {
		name string
		cfg  config.Config
		regs []HandlerRegistration
	}{
		{name: "messaging disabled", cfg: config.Config{}, regs: []HandlerRegistration{handler}},
		{name: "no handlers", cfg: enabledConfig()},
		{name: "blank topic ignored", cfg: enabledConfig(), regs: []HandlerRegistration{{Handler: handler.Handler}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{}
			engine := NewEngine(Params{Client: client, Config: tc.cfg, Registrations: tc.regs})
			if err := engine.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			if err := engine.Stop(context.Background()); err != nil {
				t.Fatalf("stop: %v", err)
			}
			if client.consumes.Load() != 0 {
				t.Fatal("expected no consumers")
			}
		})
	}
}

func TestEngineStopHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{queue: []messaging.Message{{Topic: "topup.orders"}}}
	engine := NewEngine(Params{
		Client: client,
		Config: enabledConfig(),
		Registrations: []HandlerRegistration{{
			Topic: "topup.orders",
			Handler: func(context.Context, messaging.Message) error {
				<-release
				return nil
			},
		}},
	})
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return client.consumes.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := engine.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
}
