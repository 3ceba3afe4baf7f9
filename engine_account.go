package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/permission"
	"go.uber.org/zap"
)

// Login authenticates a local account and issues a token. The user agent
// recorded on persistent tokens comes from ctx.
func (e *Engine) Login(ctx context.Context, email, pass string, persist bool) (*IssueResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	res := flows.RunLogin(ctx, normalizeEmail(email), pass, e.flows.Login)
	var err error
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureUnknownUser:
		err = newError(KindInvalid, "Not a registered email", "")
	case flows.LoginFailureDisabled:
		err = newError(KindDisabled, "Account disabled", "")
	case flows.LoginFailureBadPassword:
		err = newError(KindInvalid, "Incorrect password", "")
	case flows.LoginFailureUnconfirmed:
		err = newError(KindForbidden, "Account not confirmed", "")
	default:
		err = storageError(res.Err)
	}
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	out, err := e.Issue(ctx, res.UserID, persist, userAgentFromContext(ctx))
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	return out, nil
}

func (e *Engine) findLoginUser(ctx context.Context, email string) (*flows.LoginUserRecord, error) {
	u, err := e.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flows.LoginUserRecord{
		UserID:       u.ID,
		PasswordHash: u.PasswordHash,
		Enabled:      u.Enabled,
		Confirmed:    u.Confirmed(),
	}, nil
}

// rehash upgrades a stored hash without touching revoke-before, so live
// tokens survive.
func (e *Engine) rehash(ctx context.Context, userID, pass string) error {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return err
	}
	return e.store.UpdatePassword(ctx, userID, hash, u.RevokeBefore)
}

// LoginExternal signs in a verified provider identity, creating the account
// on first sight.
func (e *Engine) LoginExternal(ctx context.Context, profile ExternalProfile, persist bool) (*IssueResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if profile.Provider == "" || profile.ProviderID == "" {
		return nil, newError(KindValidationFailed, "Validation failed", "Missing provider identity")
	}

	u, err := e.store.GetUserByProvider(ctx, profile.Provider, profile.ProviderID)
	switch {
	case errors.Is(err, ErrNotFound):
		now := e.now()
		u, err = e.store.CreateUser(ctx, NewUser{
			DisplayName:  profile.DisplayName,
			Email:        normalizeEmail(profile.Email),
			Provider:     profile.Provider,
			ProviderID:   profile.ProviderID,
			Confirmed:    true,
			Enabled:      true,
			RevokeBefore: now,
		})
		if err != nil {
			return nil, storageError(err)
		}
		if err := e.AddRoles(ctx, u.ID, permission.RoleEveryone, permission.RoleMembers); err != nil {
			return nil, err
		}
		if err := e.revocations.SetRevokeBefore(ctx, u.ID, now); err != nil {
			return nil, storageError(err)
		}
		e.metricInc(MetricSignup)
	case err != nil:
		return nil, storageError(err)
	}

	if !u.Enabled {
		e.metricInc(MetricLoginFailure)
		return nil, newError(KindDisabled, "Account disabled", "")
	}

	out, err := e.issue(ctx, u.ID, persist, userAgentFromContext(ctx), profile.RefreshToken)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	return out, nil
}

// Signup creates an unconfirmed local account and sends a confirmation
// token through the Notifier.
func (e *Engine) Signup(ctx context.Context, displayName, email, pass string) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(displayName) == "" {
		return nil, newError(KindValidationFailed, "Validation failed", "Display name and email are required")
	}

	if _, err := e.store.GetUserByEmail(ctx, email); err == nil {
		return nil, newError(KindValidationFailed, "Email already registered", "")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storageError(err)
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, passwordError(err)
	}

	now := e.now()
	u, err := e.store.CreateUser(ctx, NewUser{
		DisplayName:  strings.TrimSpace(displayName),
		Email:        email,
		PasswordHash: hash,
		Enabled:      true,
		RevokeBefore: now,
	})
	if err != nil {
		return nil, storageError(err)
	}
	if err := e.AddRoles(ctx, u.ID, permission.RoleEveryone); err != nil {
		return nil, err
	}
	if err := e.revocations.SetRevokeBefore(ctx, u.ID, now); err != nil {
		return nil, storageError(err)
	}

	token, err := e.tokens.IssuePurpose(u.ID, jwt.PurposeConfirm, e.config.JWT.ConfirmTTL)
	if err != nil {
		return nil, wrapError(KindInternal, "Could not issue token", err)
	}
	if err := e.notifier.SendConfirmation(ctx, u, token); err != nil {
		e.logger.Warn("confirmation delivery failed", zap.String("component", "account"), zap.String("user_id", u.ID), zap.Error(err))
		return nil, wrapError(KindInternal, "Could not send confirmation", err)
	}

	e.metricInc(MetricSignup)
	return u, nil
}

// ConfirmSignup accepts a confirmation token and grants the members role.
func (e *Engine) ConfirmSignup(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	userID, err := e.tokens.ParsePurpose(token, jwt.PurposeConfirm)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return newError(KindExpired, "Expired token", "Confirmation period expired")
	}
	if err != nil {
		out := newError(KindInvalid, "Invalid token", "").withStrike(StrikeSuspicious)
		out.cause = err
		e.strike(ctx, ClientIPFromContext(ctx), StrikeSuspicious)
		return out
	}

	if err := e.store.ConfirmUser(ctx, userID, e.now()); err != nil {
		return storageError(err)
	}
	if err := e.AddRoles(ctx, userID, permission.RoleMembers); err != nil {
		return err
	}
	e.metricInc(MetricSignupConfirmed)
	return nil
}

// ChangePassword re-hashes the password and revokes every earlier token.
func (e *Engine) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return passwordError(err)
	}

	now := e.now()
	if err := e.store.UpdatePassword(ctx, userID, hash, now); err != nil {
		return storageError(err)
	}
	if err := e.revocations.SetRevokeBefore(ctx, userID, now); err != nil {
		return storageError(err)
	}
	if err := e.store.DeletePersistentTokens(ctx, userID); err != nil {
		return storageError(err)
	}
	e.metricInc(MetricPasswordChange)
	return nil
}

// SetUserEnabled bans or unbans an account. Disabling also revokes every
// token the user holds.
func (e *Engine) SetUserEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.store.SetEnabled(ctx, userID, enabled); err != nil {
		return storageError(err)
	}
	if enabled {
		return nil
	}
	if err := e.revokeAll(ctx, userID, e.now()); err != nil {
		return err
	}
	e.metricInc(MetricAccountDisabled)
	return nil
}

// PersistentTokens lists the stored persistent tokens of userID.
func (e *Engine) PersistentTokens(ctx context.Context, userID string) ([]PersistentToken, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.store.ListPersistentTokens(ctx, userID)
	if err != nil {
		return nil, storageError(err)
	}
	return rows, nil
}

// RevokePersistentToken revokes one of userID's persistent tokens by row id.
func (e *Engine) RevokePersistentToken(ctx context.Context, userID, tokenID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	rows, err := e.store.ListPersistentTokens(ctx, userID)
	if err != nil {
		return storageError(err)
	}
	var target *PersistentToken
	for i := range rows {
		if rows[i].ID == tokenID {
			target = &rows[i]
			break
		}
	}
	if target == nil {
		return newError(KindNotFound, "Could not revoke token", "")
	}

	res := flows.RunRevoke(ctx, target.Token, e.flows.Revoke)
	switch res.Failure {
	case flows.TokenFailureNone:
	case flows.TokenFailureStorage:
		return storageError(res.Err)
	default:
		// Signed with a retired key: no marker is possible, but dropping the
		// row still stops refresh.
		if _, err := e.store.DeletePersistentTokenByID(ctx, userID, tokenID); err != nil {
			return storageError(err)
		}
	}
	e.metricInc(MetricRevoke)
	return nil
}

// PrimeRevocationCache copies every stored revoke-before value into Redis.
// Run it at boot, before serving.
func (e *Engine) PrimeRevocationCache(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	entries, err := e.store.RevokeBeforeAll(ctx)
	if err != nil {
		return storageError(err)
	}
	if err := e.revocations.Prime(ctx, entries); err != nil {
		return storageError(err)
	}
	e.logger.Info("revocation cache primed", zap.String("component", "revocation"), zap.Int("users", len(entries)))
	return nil
}

// PurgeUnconfirmed deletes signups left unconfirmed for longer than the
// refresh window.
func (e *Engine) PurgeUnconfirmed(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.store.PurgeUnconfirmed(ctx, e.now().Add(-e.config.JWT.RefreshWindow))
	if err != nil {
		return 0, storageError(err)
	}
	return n, nil
}

func passwordError(err error) error {
	if errors.Is(err, password.ErrTooShort) {
		return newError(KindValidationFailed, "Validation failed", "Password too short")
	}
	return wrapError(KindInternal, "Could not hash password", err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
