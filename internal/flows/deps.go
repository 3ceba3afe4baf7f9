package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/jwt"
)

// TokenParser verifies bearer token signatures. jwt.Manager implements it.
type TokenParser interface {
	Parse(token string) (*jwt.Claims, error)
}

// Revocations is the subset of revocation.Cache the token flows need.
type Revocations interface {
	RevokeBefore(ctx context.Context, userID string) (time.Time, bool, error)
	IsRevoked(ctx context.Context, token string) (bool, error)
	MarkRevoked(ctx context.Context, token string, ttl time.Duration) error
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Verify  VerifyDeps
	Refresh RefreshDeps
	Revoke  RevokeDeps
	Login   LoginDeps
}
