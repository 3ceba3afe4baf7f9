package pg

import (
	"context"
)

func (s *Store) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, unavailable("roles", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, unavailable("roles", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("roles", err)
	}
	return out, nil
}

func (s *Store) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role).Scan(&ok)
	if err != nil {
		return false, unavailable("has role", err)
	}
	return ok, nil
}

// AddRoles grants roles; held roles are left alone.
func (s *Store) AddRoles(ctx context.Context, userID string, roles ...string) error {
	if len(roles) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING
	`, userID, roles)
	if err != nil {
		return unavailable("add roles", err)
	}
	return nil
}
