package flows

import (
	"context"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureUnknownUser
	LoginFailureDisabled
	LoginFailureBadPassword
	LoginFailureUnconfirmed
	LoginFailureStorage
)

// LoginUserRecord is a flow-local user model.
type LoginUserRecord struct {
	UserID       string
	PasswordHash string
	Enabled      bool
	Confirmed    bool
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	FindUser       func(ctx context.Context, email string) (*LoginUserRecord, error)
	VerifyPassword func(password, encoded string) (bool, error)
	NeedsRehash    func(encoded string) bool
	Rehash         func(ctx context.Context, userID, password string) error
	Warn           func(string, ...any)
}

// LoginResult carries the authenticated user id or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	UserID   string
	Rehashed bool
}

// RunLogin checks local credentials. A nil user from FindUser means the
// email is not registered. Token issuance is left to the caller.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	user, err := deps.FindUser(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureStorage, Err: err}
	}
	if user == nil {
		return LoginResult{Failure: LoginFailureUnknownUser}
	}
	if !user.Enabled {
		return LoginResult{Failure: LoginFailureDisabled, UserID: user.UserID}
	}

	// Accounts created through an external provider have no local password.
	if user.PasswordHash == "" {
		return LoginResult{Failure: LoginFailureBadPassword, UserID: user.UserID}
	}
	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{Failure: LoginFailureBadPassword, Err: err, UserID: user.UserID}
	}
	if !user.Confirmed {
		return LoginResult{Failure: LoginFailureUnconfirmed, UserID: user.UserID}
	}

	res := LoginResult{UserID: user.UserID}
	if deps.NeedsRehash != nil && deps.Rehash != nil && deps.NeedsRehash(user.PasswordHash) {
		if err := deps.Rehash(ctx, user.UserID, password); err != nil {
			if deps.Warn != nil {
				deps.Warn("password rehash failed", "user_id", user.UserID, "error", err)
			}
		} else {
			res.Rehashed = true
		}
	}
	return res
}
