package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
)

// TokenFailureKind classifies token flow failures for root-level mapping.
type TokenFailureKind int

const (
	TokenFailureNone TokenFailureKind = iota
	TokenFailureInvalid
	TokenFailureExpired
	TokenFailureRevokedPassword
	TokenFailureRevokedLogout
	TokenFailureStorage
	TokenFailureNotExpired
	TokenFailureRefreshWindow
	TokenFailureDisabled
	TokenFailureUnknownUser
	TokenFailurePersistMissing
	TokenFailureIssue
)

// VerifyDeps captures verify flow dependencies.
type VerifyDeps struct {
	Tokens      TokenParser
	Revocations Revocations
}

// VerifyResult returns either claims or a classified failure. Claims are
// also set for failures that happen after the signature verified.
type VerifyResult struct {
	Failure TokenFailureKind
	Err     error
	Claims  *jwt.Claims
}

// RunVerify checks signature, revoke-before, expiry and the revoked marker,
// in that order.
func RunVerify(ctx context.Context, token string, deps VerifyDeps) VerifyResult {
	claims, expired, res := parse(token, deps.Tokens)
	if res.Failure != TokenFailureNone {
		return res
	}

	if res := checkRevokeBefore(ctx, claims, deps.Revocations); res.Failure != TokenFailureNone {
		return res
	}
	if expired {
		return VerifyResult{Failure: TokenFailureExpired, Err: jwt.ErrTokenExpired, Claims: claims}
	}
	if res := checkMarker(ctx, token, claims, deps.Revocations); res.Failure != TokenFailureNone {
		return res
	}

	return VerifyResult{Claims: claims}
}

func parse(token string, tokens TokenParser) (*jwt.Claims, bool, VerifyResult) {
	claims, err := tokens.Parse(token)
	switch {
	case err == nil:
		return claims, false, VerifyResult{}
	case errors.Is(err, jwt.ErrTokenExpired) && claims != nil:
		return claims, true, VerifyResult{}
	default:
		return nil, false, VerifyResult{Failure: TokenFailureInvalid, Err: err}
	}
}

func checkRevokeBefore(ctx context.Context, claims *jwt.Claims, rev Revocations) VerifyResult {
	before, found, err := rev.RevokeBefore(ctx, claims.UID)
	if err != nil {
		return VerifyResult{Failure: TokenFailureStorage, Err: err, Claims: claims}
	}
	// Millisecond precision on both sides.
	if found && claims.IssuedAtTime().UnixMilli() < before.UnixMilli() {
		return VerifyResult{Failure: TokenFailureRevokedPassword, Claims: claims}
	}
	return VerifyResult{}
}

func checkMarker(ctx context.Context, token string, claims *jwt.Claims, rev Revocations) VerifyResult {
	revoked, err := rev.IsRevoked(ctx, token)
	if err != nil {
		return VerifyResult{Failure: TokenFailureStorage, Err: err, Claims: claims}
	}
	if revoked {
		return VerifyResult{Failure: TokenFailureRevokedLogout, Claims: claims}
	}
	return VerifyResult{}
}

// RefreshUser is the account state refresh needs.
type RefreshUser struct {
	Found   bool
	Enabled bool
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Tokens            TokenParser
	Revocations       Revocations
	Issue             func(userID string, persist bool, origin time.Time) (string, *jwt.Claims, error)
	LoadUser          func(ctx context.Context, userID string) (RefreshUser, error)
	ReplacePersistent func(ctx context.Context, userID, oldToken, newToken string) (bool, error)
	RefreshWindow     time.Duration
	Now               func() time.Time
}

// RefreshResult carries the new token or failure metadata.
type RefreshResult struct {
	Failure   TokenFailureKind
	Err       error
	Claims    *jwt.Claims
	Token     string
	NewClaims *jwt.Claims
}

// RunRefresh exchanges an expired token for a new one in the same chain.
// Persistent tokens must still have their stored row; the row is swapped
// with a conditional update so concurrent refreshes of one token yield a
// single winner.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) RefreshResult {
	claims, expired, res := parse(token, deps.Tokens)
	if res.Failure != TokenFailureNone {
		return RefreshResult{Failure: res.Failure, Err: res.Err}
	}

	if res := checkRevokeBefore(ctx, claims, deps.Revocations); res.Failure != TokenFailureNone {
		return RefreshResult{Failure: res.Failure, Err: res.Err, Claims: claims}
	}
	if res := checkMarker(ctx, token, claims, deps.Revocations); res.Failure != TokenFailureNone {
		return RefreshResult{Failure: res.Failure, Err: res.Err, Claims: claims}
	}
	if !expired {
		return RefreshResult{Failure: TokenFailureNotExpired, Claims: claims}
	}

	now := deps.Now()
	if !claims.Persist && now.After(claims.OriginTime().Add(deps.RefreshWindow)) {
		return RefreshResult{Failure: TokenFailureRefreshWindow, Claims: claims}
	}

	user, err := deps.LoadUser(ctx, claims.UID)
	if err != nil {
		return RefreshResult{Failure: TokenFailureStorage, Err: err, Claims: claims}
	}
	if !user.Found {
		return RefreshResult{Failure: TokenFailureUnknownUser, Claims: claims}
	}
	if !user.Enabled {
		return RefreshResult{Failure: TokenFailureDisabled, Claims: claims}
	}

	next, nextClaims, err := deps.Issue(claims.UID, claims.Persist, claims.OriginTime())
	if err != nil {
		return RefreshResult{Failure: TokenFailureIssue, Err: err, Claims: claims}
	}

	if claims.Persist {
		ok, err := deps.ReplacePersistent(ctx, claims.UID, token, next)
		if err != nil {
			return RefreshResult{Failure: TokenFailureStorage, Err: err, Claims: claims}
		}
		if !ok {
			return RefreshResult{Failure: TokenFailurePersistMissing, Claims: claims}
		}
	}

	return RefreshResult{Claims: claims, Token: next, NewClaims: nextClaims}
}

// RevokeDeps captures revoke flow dependencies.
type RevokeDeps struct {
	Tokens           TokenParser
	Revocations      Revocations
	DeletePersistent func(ctx context.Context, userID, token string) error
	RefreshWindow    time.Duration
	Now              func() time.Time
}

// RevokeResult reports the revoked token's claims or a failure.
type RevokeResult struct {
	Failure TokenFailureKind
	Err     error
	Claims  *jwt.Claims
}

// RunRevoke marks a signature-valid token revoked for the rest of its
// refreshable lifetime and drops its persistent row.
func RunRevoke(ctx context.Context, token string, deps RevokeDeps) RevokeResult {
	claims, _, res := parse(token, deps.Tokens)
	if res.Failure != TokenFailureNone {
		return RevokeResult{Failure: res.Failure, Err: res.Err}
	}

	ttl := MarkerTTL(claims, deps.RefreshWindow, deps.Now())
	if err := deps.Revocations.MarkRevoked(ctx, token, ttl); err != nil {
		return RevokeResult{Failure: TokenFailureStorage, Err: err, Claims: claims}
	}
	if claims.Persist {
		if err := deps.DeletePersistent(ctx, claims.UID, token); err != nil {
			return RevokeResult{Failure: TokenFailureStorage, Err: err, Claims: claims}
		}
	}
	return RevokeResult{Claims: claims}
}

// MarkerTTL is how long a revoked marker must live to outlast every use of
// the token. Non-persistent tokens stay refreshable until their chain
// window closes, so the marker covers that too.
func MarkerTTL(claims *jwt.Claims, window time.Duration, now time.Time) time.Duration {
	until := claims.ExpiresAtTime()
	if !claims.Persist {
		if end := claims.OriginTime().Add(window); end.After(until) {
			until = end
		}
	}
	return until.Sub(now)
}
