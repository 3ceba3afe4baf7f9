package goGuard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine   *Engine
	store    *fakeStore
	clock    *testClock
	mr       *miniredis.Miniredis
	redis    *redis.Client
	notifier *capturingNotifier
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "goguard-test"
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinLength = 8
	cfg.IDS.SuspiciousThreshold = 3
	cfg.IDS.MaliciousThreshold = 2
	cfg.Audit.MemoryInterval = 0
	return cfg
}

func testPolicies() *permission.Registry {
	r := permission.NewRegistry()
	r.MustRegister(
		permission.Policy{Method: "GET", Route: "/user/{userId}", Roles: []string{permission.RoleMembers}},
		permission.Policy{
			Method:   "POST",
			Route:    "/user/{userId}/password",
			Roles:    []string{permission.RoleMembers},
			Validate: permission.Strict([]string{"password"}),
		},
		permission.Policy{Method: "GET", Route: "/public", Public: true},
		permission.Policy{Method: "GET", Route: "/admin/stats", Roles: []string{permission.RoleAdmins}},
		permission.Policy{Method: "GET", Route: "/feed", Roles: []string{permission.RoleEveryone}},
		permission.Policy{Method: "POST", Route: "/auth/login", Public: true, BruteForce: true},
	)
	return r
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	store := newFakeStore()
	clock := newTestClock()
	notifier := &capturingNotifier{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAuditStore(store).
		WithPolicies(testPolicies()).
		WithNotifier(notifier).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{
		engine:   engine,
		store:    store,
		clock:    clock,
		mr:       mr,
		redis:    rdb,
		notifier: notifier,
	}
}

func (h *harness) issue(t *testing.T, uid string, persist bool) string {
	t.Helper()
	res, err := h.engine.Issue(context.Background(), uid, persist, "test-agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return res.Token
}

// member creates a confirmed local account holding the members role.
func (h *harness) member(t *testing.T, email, pass string) string {
	t.Helper()
	ctx := context.Background()
	u, err := h.engine.Signup(ctx, "Test User", email, pass)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := h.engine.ConfirmSignup(ctx, h.notifier.tokens[email]); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return u.ID
}

func testRequest(ip, method, route, path string) *Request {
	return &Request{
		IP:     ip,
		Method: method,
		Route:  route,
		Path:   path,
		Headers: map[string]string{
			"host":       "api.test",
			"user-agent": "go-test",
		},
		Params: map[string]string{},
		Query:  map[string]string{},
	}
}

func withBearer(req *Request, token string) *Request {
	req.Headers["authorization"] = "Bearer " + token
	return req
}
