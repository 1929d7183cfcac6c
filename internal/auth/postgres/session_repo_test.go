// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunevault/tunevault/internal/auth"
	"github.com/tunevault/tunevault/internal/auth/postgres"
	"github.com/tunevault/tunevault/pkg/errutil"
)

func newTestSession(t *testing.T) *auth.Session {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.Session{
		ID:         ulid.Make(),
		UserID:     ulid.Make(),
		TokenHash:  auth.HashSessionToken("sometoken"),
		ExpiresAt:  now.Add(auth.DefaultSessionTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
}

func sessionRows(s *auth.Session) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "last_seen_at"}).
		AddRow(s.ID.String(), s.UserID.String(), s.TokenHash, s.ExpiresAt, s.CreatedAt, s.LastSeenAt)
}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := newTestSession(t)
		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(session.ID.String(), session.UserID.String(), session.TokenHash,
				session.ExpiresAt, session.CreatedAt, session.LastSeenAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := postgres.NewSessionRepository(mock)
		require.NoError(t, repo.Create(ctx, session))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error surfaces as create failed", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		repo := postgres.NewSessionRepository(mock)
		err = repo.Create(ctx, newTestSession(t))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	})
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		session := newTestSession(t)
		mock.ExpectQuery(`SELECT .+ FROM sessions\s+WHERE token_hash = \$1`).
			WithArgs(session.TokenHash).
			WillReturnRows(sessionRows(session))

		repo := postgres.NewSessionRepository(mock)
		got, err := repo.GetByTokenHash(ctx, session.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.UserID, got.UserID)
	})

	t.Run("missing session wraps not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT .+ FROM sessions`).
			WithArgs("unknownhash").
			WillReturnError(pgx.ErrNoRows)

		repo := postgres.NewSessionRepository(mock)
		got, err := repo.GetByTokenHash(ctx, "unknownhash")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
		errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
	})
}

func TestSessionRepository_UpdateLastSeen(t *testing.T) {
	ctx := context.Background()

	t.Run("updates timestamp", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		now := time.Now().UTC()
		mock.ExpectExec(`UPDATE sessions SET last_seen_at = \$2`).
			WithArgs(id.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := postgres.NewSessionRepository(mock)
		require.NoError(t, repo.UpdateLastSeen(ctx, id, now))
	})

	t.Run("zero rows affected means not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectExec(`UPDATE sessions SET last_seen_at = \$2`).
			WithArgs(id.String(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewSessionRepository(mock)
		err = repo.UpdateLastSeen(ctx, id, time.Now().UTC())
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestSessionRepository_DeleteByTokenHash(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes session", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs("somehash").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		repo := postgres.NewSessionRepository(mock)
		require.NoError(t, repo.DeleteByTokenHash(ctx, "somehash"))
	})

	t.Run("deleting absent session is not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs("unknownhash").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := postgres.NewSessionRepository(mock)
		require.NoError(t, repo.DeleteByTokenHash(ctx, "unknownhash"))
	})

	t.Run("database error surfaces", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs("somehash").
			WillReturnError(errors.New("connection refused"))

		repo := postgres.NewSessionRepository(mock)
		err = repo.DeleteByTokenHash(ctx, "somehash")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_DELETE_FAILED")
	})
}

func TestSessionRepository_DeleteByUser(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	userID := ulid.Make()
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := postgres.NewSessionRepository(mock)
	require.NoError(t, repo.DeleteByUser(ctx, userID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("returns deleted count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM sessions WHERE expires_at < \$1`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("DELETE", 7))

		repo := postgres.NewSessionRepository(mock)
		count, err := repo.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)
	})

	t.Run("database error surfaces", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM sessions WHERE expires_at < \$1`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		repo := postgres.NewSessionRepository(mock)
		_, err = repo.DeleteExpired(ctx)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_DELETE_EXPIRED_FAILED")
	})
}
