package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
)

type fakeRevocations struct {
	before  map[string]time.Time
	revoked map[string]time.Duration
	err     error
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{before: map[string]time.Time{}, revoked: map[string]time.Duration{}}
}

func (f *fakeRevocations) RevokeBefore(_ context.Context, uid string) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	t, ok := f.before[uid]
	return t, ok, nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.revoked[token]
	return ok, nil
}

func (f *fakeRevocations) MarkRevoked(_ context.Context, token string, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	if ttl > 0 {
		f.revoked[token] = ttl
	}
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newManager(t *testing.T, c *clock) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Now:           c.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestRunVerifyOrder(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)
	rev := newFakeRevocations()
	deps := VerifyDeps{Tokens: m, Revocations: rev}
	ctx := context.Background()

	tok, _, err := m.Issue("u1", false, time.Time{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if res := RunVerify(ctx, tok, deps); res.Failure != TokenFailureNone || res.Claims.UID != "u1" {
		t.Fatalf("expected valid token, got %+v", res)
	}

	if res := RunVerify(ctx, tok+"x", deps); res.Failure != TokenFailureInvalid {
		t.Fatalf("expected invalid, got %v", res.Failure)
	}

	rev.revoked[tok] = time.Minute
	if res := RunVerify(ctx, tok, deps); res.Failure != TokenFailureRevokedLogout {
		t.Fatalf("expected logout revocation, got %v", res.Failure)
	}

	// Expired beats the revoked marker.
	c.now = c.now.Add(2 * time.Hour)
	if res := RunVerify(ctx, tok, deps); res.Failure != TokenFailureExpired {
		t.Fatalf("expected expired, got %v", res.Failure)
	}

	// Revoke-before beats expiry.
	rev.before["u1"] = time.Unix(1_700_000_001, 0)
	if res := RunVerify(ctx, tok, deps); res.Failure != TokenFailureRevokedPassword {
		t.Fatalf("expected password revocation, got %v", res.Failure)
	}
}

func TestRunVerifyRevokeBeforeMillisecondPrecision(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 100*int64(time.Millisecond))}
	m := newManager(t, c)
	rev := newFakeRevocations()
	deps := VerifyDeps{Tokens: m, Revocations: rev}

	tok, _, _ := m.Issue("u1", false, time.Time{})
	rev.before["u1"] = c.now.Add(800 * time.Millisecond)
	if res := RunVerify(context.Background(), tok, deps); res.Failure != TokenFailureRevokedPassword {
		t.Fatalf("token issued earlier in the same second must be revoked, got %v", res.Failure)
	}

	c.now = rev.before["u1"]
	fresh, _, _ := m.Issue("u1", false, time.Time{})
	if res := RunVerify(context.Background(), fresh, deps); res.Failure != TokenFailureNone {
		t.Fatalf("token issued at revoke-before should verify, got %v", res.Failure)
	}
}

func TestRunVerifyStorageFailure(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)
	rev := newFakeRevocations()
	rev.err = errors.New("down")

	tok, _, _ := m.Issue("u1", false, time.Time{})
	if res := RunVerify(context.Background(), tok, VerifyDeps{Tokens: m, Revocations: rev}); res.Failure != TokenFailureStorage {
		t.Fatalf("expected storage failure, got %v", res.Failure)
	}
}

type refreshHarness struct {
	clock   *clock
	manager *jwt.Manager
	rev     *fakeRevocations
	user    RefreshUser
	rows    map[string]string
}

func newRefreshHarness(t *testing.T) *refreshHarness {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	return &refreshHarness{
		clock:   c,
		manager: newManager(t, c),
		rev:     newFakeRevocations(),
		user:    RefreshUser{Found: true, Enabled: true},
		rows:    map[string]string{},
	}
}

func (h *refreshHarness) deps() RefreshDeps {
	return RefreshDeps{
		Tokens:      h.manager,
		Revocations: h.rev,
		Issue:       h.manager.Issue,
		LoadUser: func(context.Context, string) (RefreshUser, error) {
			return h.user, nil
		},
		ReplacePersistent: func(_ context.Context, uid, old, next string) (bool, error) {
			if h.rows[old] != uid {
				return false, nil
			}
			delete(h.rows, old)
			h.rows[next] = uid
			return true, nil
		},
		RefreshWindow: 2 * time.Hour,
		Now:           h.clock.Now,
	}
}

func TestRunRefreshRejectsLiveToken(t *testing.T) {
	h := newRefreshHarness(t)
	tok, _, _ := h.manager.Issue("u1", false, time.Time{})

	if res := RunRefresh(context.Background(), tok, h.deps()); res.Failure != TokenFailureNotExpired {
		t.Fatalf("expected not-expired, got %v", res.Failure)
	}
}

func TestRunRefreshKeepsOriginAndBoundsChain(t *testing.T) {
	h := newRefreshHarness(t)
	ctx := context.Background()
	start := h.clock.now
	tok, _, _ := h.manager.Issue("u1", false, time.Time{})

	h.clock.now = start.Add(61 * time.Minute)
	res := RunRefresh(ctx, tok, h.deps())
	if res.Failure != TokenFailureNone {
		t.Fatalf("first refresh: %v", res.Failure)
	}
	if res.NewClaims.Origin != start.Unix() {
		t.Fatalf("origin not preserved: %d vs %d", res.NewClaims.Origin, start.Unix())
	}
	if res.NewClaims.Persist {
		t.Fatal("persist flag flipped")
	}

	// The refreshed token expires at start+2h1m, which is past the window.
	h.clock.now = start.Add(2*time.Hour + 2*time.Minute)
	if res := RunRefresh(ctx, res.Token, h.deps()); res.Failure != TokenFailureRefreshWindow {
		t.Fatalf("expected window failure, got %v", res.Failure)
	}
}

func TestRunRefreshPersistentSingleWinner(t *testing.T) {
	h := newRefreshHarness(t)
	ctx := context.Background()
	tok, _, _ := h.manager.Issue("u1", true, time.Time{})
	h.rows[tok] = "u1"

	h.clock.now = h.clock.now.Add(30 * 24 * time.Hour)
	first := RunRefresh(ctx, tok, h.deps())
	if first.Failure != TokenFailureNone {
		t.Fatalf("first refresh: %v", first.Failure)
	}
	if _, ok := h.rows[first.Token]; !ok {
		t.Fatal("row not moved to the new token")
	}

	second := RunRefresh(ctx, tok, h.deps())
	if second.Failure != TokenFailurePersistMissing {
		t.Fatalf("expected persist missing, got %v", second.Failure)
	}
}

func TestRunRefreshAccountState(t *testing.T) {
	h := newRefreshHarness(t)
	tok, _, _ := h.manager.Issue("u1", false, time.Time{})
	h.clock.now = h.clock.now.Add(61 * time.Minute)

	h.user = RefreshUser{Found: true, Enabled: false}
	if res := RunRefresh(context.Background(), tok, h.deps()); res.Failure != TokenFailureDisabled {
		t.Fatalf("expected disabled, got %v", res.Failure)
	}
	h.user = RefreshUser{}
	if res := RunRefresh(context.Background(), tok, h.deps()); res.Failure != TokenFailureUnknownUser {
		t.Fatalf("expected unknown user, got %v", res.Failure)
	}
}

func TestRunRefreshHonorsRevocations(t *testing.T) {
	h := newRefreshHarness(t)
	tok, _, _ := h.manager.Issue("u1", false, time.Time{})
	h.clock.now = h.clock.now.Add(61 * time.Minute)

	h.rev.revoked[tok] = time.Hour
	if res := RunRefresh(context.Background(), tok, h.deps()); res.Failure != TokenFailureRevokedLogout {
		t.Fatalf("expected logout revocation, got %v", res.Failure)
	}
}

func TestRunRevokeMarkerCoversRefreshWindow(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)
	rev := newFakeRevocations()
	var deleted []string
	deps := RevokeDeps{
		Tokens:      m,
		Revocations: rev,
		DeletePersistent: func(_ context.Context, uid, token string) error {
			deleted = append(deleted, token)
			return nil
		},
		RefreshWindow: 2 * time.Hour,
		Now:           c.Now,
	}
	ctx := context.Background()

	web, _, _ := m.Issue("u1", false, time.Time{})
	app, _, _ := m.Issue("u1", true, time.Time{})

	if res := RunRevoke(ctx, web, deps); res.Failure != TokenFailureNone {
		t.Fatalf("revoke web: %v", res.Failure)
	}
	if got := rev.revoked[web]; got != 2*time.Hour {
		t.Fatalf("web marker ttl = %v, want 2h", got)
	}

	if res := RunRevoke(ctx, app, deps); res.Failure != TokenFailureNone {
		t.Fatalf("revoke app: %v", res.Failure)
	}
	if got := rev.revoked[app]; got != time.Hour {
		t.Fatalf("app marker ttl = %v, want 1h", got)
	}
	if len(deleted) != 1 || deleted[0] != app {
		t.Fatalf("persistent row not deleted: %v", deleted)
	}

	if res := RunRevoke(ctx, "garbage", deps); res.Failure != TokenFailureInvalid {
		t.Fatalf("expected invalid, got %v", res.Failure)
	}
}

func TestRunRevokeAcceptsExpiredToken(t *testing.T) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, c)
	rev := newFakeRevocations()
	tok, _, _ := m.Issue("u1", false, time.Time{})

	c.now = c.now.Add(90 * time.Minute)
	res := RunRevoke(context.Background(), tok, RevokeDeps{
		Tokens:        m,
		Revocations:   rev,
		RefreshWindow: 2 * time.Hour,
		Now:           c.Now,
	})
	if res.Failure != TokenFailureNone {
		t.Fatalf("revoke expired: %v", res.Failure)
	}
	if got := rev.revoked[tok]; got != 30*time.Minute {
		t.Fatalf("marker ttl = %v, want 30m", got)
	}
}
