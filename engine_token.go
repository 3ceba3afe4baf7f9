package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/flows"
	"go.uber.org/zap"
)

// Issue signs a token for userID. Persistent tokens are stored with
// userAgent and never expire from the refresh side; the row must exist for
// them to refresh.
func (e *Engine) Issue(ctx context.Context, userID string, persist bool, userAgent string) (*IssueResult, error) {
	return e.issue(ctx, userID, persist, userAgent, "")
}

func (e *Engine) issue(ctx context.Context, userID string, persist bool, userAgent, externalRefresh string) (*IssueResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, newError(KindValidationFailed, "Validation failed", "Missing user id")
	}

	token, claims, err := e.tokens.Issue(userID, persist, time.Time{})
	if err != nil {
		return nil, wrapError(KindInternal, "Could not issue token", err)
	}

	if persist {
		now := e.now()
		err := e.store.CreatePersistentToken(ctx, PersistentToken{
			UserID:               userID,
			Token:                token,
			UserAgent:            userAgent,
			ExternalRefreshToken: externalRefresh,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
		if err != nil {
			return nil, wrapError(KindStorageUnavailable, "Could not store token", err)
		}
	}

	e.metricInc(MetricIssue)
	return &IssueResult{
		Token:     token,
		UserID:    userID,
		Persist:   persist,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// Verify checks signature, revoke-before, expiry and the logout marker.
// Invalid and revoked tokens strike the client IP from ctx.
func (e *Engine) Verify(ctx context.Context, token string) (*Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := flows.RunVerify(ctx, token, e.flows.Verify)
	e.metrics.Observe(MetricVerifyLatency, time.Since(start))

	if res.Failure != flows.TokenFailureNone {
		e.metricInc(MetricVerifyFailure)
		return nil, e.tokenFailure(ctx, res.Failure, res.Err)
	}

	e.metricInc(MetricVerifySuccess)
	return res.Claims, nil
}

// Refresh exchanges an expired token for a new one carrying the same user,
// persist flag and chain origin.
func (e *Engine) Refresh(ctx context.Context, token string) (*IssueResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := flows.RunRefresh(ctx, token, e.flows.Refresh)
	if res.Failure != flows.TokenFailureNone {
		e.metricInc(MetricRefreshFailure)
		if res.Failure == flows.TokenFailurePersistMissing {
			e.metricInc(MetricRefreshReplay)
		}
		return nil, e.tokenFailure(ctx, res.Failure, res.Err)
	}

	e.metricInc(MetricRefreshSuccess)
	return &IssueResult{
		Token:     res.Token,
		UserID:    res.NewClaims.UID,
		Persist:   res.NewClaims.Persist,
		ExpiresAt: res.NewClaims.ExpiresAtTime(),
	}, nil
}

// Revoke invalidates a single token, expired or not, for the rest of its
// refreshable lifetime.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	res := flows.RunRevoke(ctx, token, e.flows.Revoke)
	if res.Failure != flows.TokenFailureNone {
		return e.tokenFailure(ctx, res.Failure, res.Err)
	}
	e.metricInc(MetricRevoke)
	return nil
}

// Logout is Revoke.
func (e *Engine) Logout(ctx context.Context, token string) error {
	return e.Revoke(ctx, token)
}

// RevokeAllForUser invalidates every token issued to userID before now and
// drops all persistent rows.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.revokeAll(ctx, userID, e.now()); err != nil {
		return err
	}
	e.metricInc(MetricRevokeAll)
	return nil
}

func (e *Engine) revokeAll(ctx context.Context, userID string, at time.Time) error {
	if err := e.store.SetRevokeBefore(ctx, userID, at); err != nil {
		return storageError(err)
	}
	if err := e.revocations.SetRevokeBefore(ctx, userID, at); err != nil {
		return storageError(err)
	}
	if err := e.store.DeletePersistentTokens(ctx, userID); err != nil {
		return storageError(err)
	}
	return nil
}

func (e *Engine) loadRefreshUser(ctx context.Context, userID string) (flows.RefreshUser, error) {
	u, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return flows.RefreshUser{}, nil
	}
	if err != nil {
		return flows.RefreshUser{}, err
	}
	return flows.RefreshUser{Found: true, Enabled: u.Enabled}, nil
}

// tokenFailure maps a flow failure onto the public error and records the
// strike it carries.
func (e *Engine) tokenFailure(ctx context.Context, kind flows.TokenFailureKind, cause error) error {
	var err *Error
	switch kind {
	case flows.TokenFailureInvalid:
		err = newError(KindInvalid, "Invalid token", "").withStrike(StrikeSuspicious)
	case flows.TokenFailureExpired:
		err = newError(KindExpired, "Expired token", "")
	case flows.TokenFailureRevokedPassword:
		err = newError(KindRevoked, "Revoked token", "Issued using old password").withStrike(StrikeSuspicious)
	case flows.TokenFailureRevokedLogout, flows.TokenFailurePersistMissing:
		err = newError(KindRevoked, "Revoked token", "User logged out").withStrike(StrikeSuspicious)
	case flows.TokenFailureUnknownUser:
		err = newError(KindRevoked, "Revoked token", "User not found")
	case flows.TokenFailureNotExpired:
		err = newError(KindValidationFailed, "Token not expired", "")
	case flows.TokenFailureRefreshWindow:
		err = newError(KindExpired, "Refresh token expired", "Refresh period expired")
	case flows.TokenFailureDisabled:
		err = newError(KindDisabled, "Account disabled", "")
	case flows.TokenFailureStorage:
		err = wrapError(KindStorageUnavailable, "Storage unavailable", cause)
	default:
		err = wrapError(KindInternal, "Internal error", cause)
	}
	if err.cause == nil {
		err.cause = cause
	}

	if err.Strike != StrikeNone {
		ip := ClientIPFromContext(ctx)
		e.strike(ctx, ip, err.Strike)
		e.recordSecurityError(ctx, "token", err)
	}
	if err.Kind == KindStorageUnavailable || err.Kind == KindInternal {
		e.logger.Warn("token operation failed", zap.String("component", "token"), zap.Error(err))
	}
	return err
}
