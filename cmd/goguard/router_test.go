package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/store/pg"
	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestApp wires the router over miniredis and a pgxmock pool that
// expects no queries.
func newTestApp(t *testing.T) (*app, pgxmock.PgxPoolIface) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := pg.New(mock)

	fc := defaultFileConfig()
	fc.JWT.PrivateKey = "0123456789abcdef0123456789abcdef"
	fc.Server.MaxBodyBytes = 1024
	reg, err := fc.registry()
	require.NoError(t, err)

	engine, err := goGuard.New().
		WithConfig(fc.engineConfig()).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithRoleStore(store).
		WithAuditStore(store).
		WithPolicies(reg).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &app{cfg: fc, logger: zap.NewNop(), redis: rdb, engine: engine}, mock
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("User-Agent", "router-test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestRouterHealthAndMetrics(t *testing.T) {
	a, _ := newTestApp(t)
	h := newRouter(a)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)

	rec := do(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goguard_ids_scans_total")
}

func TestRouterProtectedRouteNeedsToken(t *testing.T) {
	a, mock := newTestApp(t)
	h := newRouter(a)

	rec := do(h, http.MethodGet, "/admin/banned", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"msg":"No token"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRouterLoginBodyIsValidated(t *testing.T) {
	a, mock := newTestApp(t)
	h := newRouter(a)

	rec := do(h, http.MethodPost, "/auth/login", `{"email":"a@example.com","role":"admins"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRouterClientLogIsAccepted(t *testing.T) {
	a, _ := newTestApp(t)
	h := newRouter(a)

	rec := do(h, http.MethodPost, "/api/audit/clientlog", `{"message":"render failed"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPrintBanned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBanned(&buf, nil))
	assert.Equal(t, "no banned IPs\n", buf.String())

	buf.Reset()
	require.NoError(t, printBanned(&buf, []goGuard.BanEntry{
		{IP: "203.0.113.9", Suspicious: 3, TTL: time.Hour},
		{IP: "203.0.113.10", RateLimitKey: "Bruteforce", TTL: 5 * time.Minute},
	}))
	out := buf.String()
	assert.Contains(t, out, "203.0.113.9")
	assert.Contains(t, out, "Bruteforce")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}
