package pg

import (
	"context"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/google/uuid"
)

func (s *Store) CreatePersistentToken(ctx context.Context, t goGuard.PersistentToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO persistent_tokens (id, user_id, token, user_agent, external_refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, t.Token, t.UserAgent, t.ExternalRefreshToken, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return unavailable("create persistent token", err)
	}
	return nil
}

// ReplacePersistentToken is a conditional update keyed by the presented
// token, so two refreshes of one token cannot both succeed.
func (s *Store) ReplacePersistentToken(ctx context.Context, userID, oldToken, newToken string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE persistent_tokens SET token = $3, updated_at = now()
		WHERE user_id = $1 AND token = $2
	`, userID, oldToken, newToken)
	if err != nil {
		return false, unavailable("replace persistent token", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeletePersistentToken(ctx context.Context, userID, token string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM persistent_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return unavailable("delete persistent token", err)
	}
	return nil
}

func (s *Store) DeletePersistentTokenByID(ctx context.Context, userID, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM persistent_tokens WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return false, unavailable("delete persistent token", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeletePersistentTokens(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM persistent_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return unavailable("delete persistent tokens", err)
	}
	return nil
}

func (s *Store) ListPersistentTokens(ctx context.Context, userID string) ([]goGuard.PersistentToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, token, user_agent, external_refresh_token, created_at, updated_at
		FROM persistent_tokens
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, unavailable("list persistent tokens", err)
	}
	defer rows.Close()

	var out []goGuard.PersistentToken
	for rows.Next() {
		var t goGuard.PersistentToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.UserAgent, &t.ExternalRefreshToken, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, unavailable("list persistent tokens", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list persistent tokens", err)
	}
	return out, nil
}
