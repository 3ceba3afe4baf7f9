package goGuard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkVerify(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)
	res, err := engine.Issue(context.Background(), "u1", false, "")
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Verify(context.Background(), res.Token); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkGuard(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)
	ctx := context.Background()
	if err := engine.AddRoles(ctx, "u1", "members"); err != nil {
		b.Fatalf("add roles failed: %v", err)
	}
	res, err := engine.Issue(ctx, "u1", false, "")
	if err != nil {
		b.Fatalf("issue failed: %v", err)
	}
	req := withBearer(testRequest("198.51.100.7", "GET", "/user/{userId}", "/user/u1"), res.Token)
	req.Params[TargetParam] = "u1"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Guard(ctx, req); err != nil {
			b.Fatalf("guard failed: %v", err)
		}
	}
}

func BenchmarkInspectClean(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)
	req := testRequest("127.0.0.2", "POST", "/feed", "/feed?page=2")
	req.Body = []byte(`{"title":"weekly report","tags":["ops","q3"]}`)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Inspect(context.Background(), req); err != nil {
			b.Fatalf("inspect failed: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, store := newBenchmarkEngine(b)
	ctx := context.Background()
	hash, err := engine.hasher.Hash("correct-password-123")
	if err != nil {
		b.Fatalf("hash failed: %v", err)
	}
	store.putConfirmed("u1", "alice@example.com", hash)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123", false); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func newBenchmarkEngine(b *testing.B) (*Engine, *fakeStore) {
	b.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	cfg.Audit.Enabled = false
	cfg.IDS.Bruteforce.FreeRetries = 1 << 30

	store := newFakeStore()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithPolicies(testPolicies()).
		Build()
	if err != nil {
		b.Fatalf("build failed: %v", err)
	}

	b.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return engine, store
}
