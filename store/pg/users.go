package pg

import (
	"context"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, display_name, COALESCE(email, ''), password_hash, confirmed_at,
	revoke_before, enabled, provider, provider_id, created_at`

func scanUser(row pgx.Row) (*goGuard.User, error) {
	var u goGuard.User
	err := row.Scan(
		&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.ConfirmedAt,
		&u.RevokeBefore, &u.Enabled, &u.Provider, &u.ProviderID, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*goGuard.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	u, err := scanUser(row)
	if err != nil {
		return nil, rowError("get user", "user "+userID, err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*goGuard.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, rowError("get user by email", "user", err)
	}
	return u, nil
}

func (s *Store) GetUserByProvider(ctx context.Context, provider, providerID string) (*goGuard.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2 LIMIT 1`,
		provider, providerID)
	u, err := scanUser(row)
	if err != nil {
		return nil, rowError("get user by provider", "user", err)
	}
	return u, nil
}

// CreateUser inserts a new account with a random id. Empty emails are
// stored as NULL so provider accounts without one do not collide.
func (s *Store) CreateUser(ctx context.Context, in goGuard.NewUser) (*goGuard.User, error) {
	u := &goGuard.User{
		ID:           uuid.NewString(),
		DisplayName:  in.DisplayName,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		RevokeBefore: in.RevokeBefore,
		Enabled:      in.Enabled,
		Provider:     in.Provider,
		ProviderID:   in.ProviderID,
	}
	if in.Confirmed {
		at := in.RevokeBefore
		u.ConfirmedAt = &at
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, confirmed_at,
			revoke_before, enabled, provider, provider_id, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, now())
		RETURNING created_at
	`, u.ID, u.DisplayName, u.Email, u.PasswordHash, u.ConfirmedAt,
		u.RevokeBefore, u.Enabled, u.Provider, u.ProviderID).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: email already registered", goGuard.ErrValidationFailed)
	}
	if err != nil {
		return nil, unavailable("create user", err)
	}
	return u, nil
}

func (s *Store) updateUser(ctx context.Context, op, userID, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return unavailable(op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("user " + userID)
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hash string, revokeBefore time.Time) error {
	return s.updateUser(ctx, "update password", userID,
		`UPDATE users SET password_hash = $2, revoke_before = $3 WHERE id = $1`, hash, revokeBefore)
}

func (s *Store) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.updateUser(ctx, "set enabled", userID,
		`UPDATE users SET enabled = $2 WHERE id = $1`, enabled)
}

func (s *Store) SetRevokeBefore(ctx context.Context, userID string, at time.Time) error {
	return s.updateUser(ctx, "set revoke before", userID,
		`UPDATE users SET revoke_before = $2 WHERE id = $1`, at)
}

func (s *Store) ConfirmUser(ctx context.Context, userID string, at time.Time) error {
	return s.updateUser(ctx, "confirm user", userID,
		`UPDATE users SET confirmed_at = $2 WHERE id = $1`, at)
}

// RevokeBeforeAll returns every user's revoke-before for cache priming.
func (s *Store) RevokeBeforeAll(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.Query(ctx, `SELECT id, revoke_before FROM users`)
	if err != nil {
		return nil, unavailable("revoke before all", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, unavailable("revoke before all", err)
		}
		out[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("revoke before all", err)
	}
	return out, nil
}

// PurgeUnconfirmed deletes local signups never confirmed and created
// before createdBefore.
func (s *Store) PurgeUnconfirmed(ctx context.Context, createdBefore time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM users
		WHERE confirmed_at IS NULL AND provider = '' AND created_at < $1
	`, createdBefore)
	if err != nil {
		return 0, unavailable("purge unconfirmed", err)
	}
	return tag.RowsAffected(), nil
}
