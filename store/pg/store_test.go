package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/store/pg"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{
	"id", "display_name", "email", "password_hash", "confirmed_at",
	"revoke_before", "enabled", "provider", "provider_id", "created_at",
}

var auditCols = []string{
	"stream", "ts", "user_id", "action", "message", "description", "status",
	"method", "route", "ip", "geo", "user_agent", "request", "response",
	"duration_ms", "memory", "metadata",
}

func TestGetUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("success", func(t *testing.T) {
		confirmed := now
		mock.ExpectQuery("SELECT id, display_name").
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(userCols).
				AddRow("u1", "Ann", "ann@example.com", "hash", &confirmed, now, true, "", "", now))

		u, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "ann@example.com", u.Email)
		assert.True(t, u.Confirmed())
		assert.True(t, u.Enabled)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, display_name").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, goGuard.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, display_name").
			WithArgs("u1").
			WillReturnError(fmt.Errorf("db error"))

		_, err := s.GetUser(ctx, "u1")
		assert.ErrorIs(t, err, goGuard.ErrStorageUnavailable)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	ctx := context.Background()
	now := time.Now().UTC()
	anyArgs := make([]any, 9)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(anyArgs...).
			WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

		u, err := s.CreateUser(ctx, goGuard.NewUser{
			DisplayName:  "Ben",
			Email:        "ben@example.com",
			PasswordHash: "hash",
			Enabled:      true,
			RevokeBefore: now,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, now, u.CreatedAt)
		assert.False(t, u.Confirmed())
	})

	t.Run("duplicate email", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(anyArgs...).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := s.CreateUser(ctx, goGuard.NewUser{Email: "ben@example.com"})
		assert.ErrorIs(t, err, goGuard.ErrValidationFailed)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingUserIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	mock.ExpectExec("UPDATE users SET enabled").
		WithArgs("ghost", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.SetEnabled(context.Background(), "ghost", false)
	assert.ErrorIs(t, err, goGuard.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePersistentTokenSingleWinner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	ctx := context.Background()

	mock.ExpectExec("UPDATE persistent_tokens").
		WithArgs("u1", "old", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE persistent_tokens").
		WithArgs("u1", "old", "newer").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.ReplacePersistentToken(ctx, "u1", "old", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ReplacePersistentToken(ctx, "u1", "old", "newer")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPersistentTokens(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, user_id, token").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token", "user_agent", "external_refresh_token", "created_at", "updated_at"}).
			AddRow("pt1", "u1", "tok1", "ua", "", now, now).
			AddRow("pt2", "u1", "tok2", "ua", "gh", now, now))

	rows, err := s.ListPersistentTokens(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "gh", rows[1].ExternalRefreshToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddRolesIsIdempotentInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs("u1", []string{"everyone", "members"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("everyone").AddRow("members"))

	require.NoError(t, s.AddRoles(context.Background(), "u1", "everyone", "members"))
	require.NoError(t, s.AddRoles(context.Background(), "u1"))

	roles, err := s.Roles(context.Background(), "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"everyone", "members"}, roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventsCopiesInTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	ctx := context.Background()
	events := []goGuard.AuditEvent{
		{Timestamp: time.Now(), Action: "strike", Metadata: map[string]string{"source": "ids"}},
		{Timestamp: time.Now(), Action: "ban", Memory: &goGuard.AuditMemory{HeapAlloc: 1}},
	}

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"audit_events"}, auditCols).WillReturnResult(2)
		mock.ExpectCommit()

		require.NoError(t, s.InsertEvents(ctx, goGuard.StreamSecurity, events))
	})

	t.Run("copy failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCopyFrom(pgx.Identifier{"audit_events"}, auditCols).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.InsertEvents(ctx, goGuard.StreamSecurity, events)
		assert.ErrorIs(t, err, goGuard.ErrStorageUnavailable)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, s.InsertEvents(ctx, goGuard.StreamSecurity, nil))
	})
}

func TestPurgeUnconfirmed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := pg.New(mock)
	cutoff := time.Now().Add(-2 * time.Hour)
	mock.ExpectExec("DELETE FROM users").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.PurgeUnconfirmed(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
