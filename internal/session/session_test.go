package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "session.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	maria := models.User{ID: "u1", Username: "maria", Token: "tok", ExpiresAt: time.Unix(1900000000, 0)}
	joao := models.User{ID: "u2", Username: "joao"}

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, maria))
	got, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, maria.ID, got.ID)
	assert.Equal(t, maria.Username, got.Username)
	assert.Equal(t, maria.Token, got.Token)
	assert.True(t, maria.ExpiresAt.Equal(got.ExpiresAt))

	// single slot: a second save replaces the first
	require.NoError(t, s.Save(ctx, joao))
	got, _, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.ID)
	assert.True(t, got.ExpiresAt.IsZero())

	require.NoError(t, s.Clear(ctx))
	_, ok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	t.Run("Save load clear", func(t *testing.T) {
		testStore(t, openTestStore(t))
	})

	t.Run("Survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "session.db")
		ctx := context.Background()

		s, err := OpenSQLite(path, quietLogger())
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, models.User{ID: "u1", Username: "maria"}))
		require.NoError(t, s.Close())

		s, err = OpenSQLite(path, quietLogger())
		require.NoError(t, err)
		defer s.Close()

		got, ok, err := s.Load(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "maria", got.Username)
	})
}

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) Login(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(models.User), args.Error(1)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	maria := models.User{ID: "u1", Username: "maria"}

	t.Run("Login stores the identity", func(t *testing.T) {
		auth := &mockAuth{}
		auth.On("Login", mock.Anything, "maria").Return(maria, nil)
		store := NewMemoryStore()
		m := NewManager(auth, store, quietLogger())

		u, err := m.Login(ctx, "maria")
		require.NoError(t, err)
		assert.Equal(t, maria, u)

		resumed, ok, err := m.Resume(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, maria, resumed)
		auth.AssertExpectations(t)
	})

	t.Run("Failed login stores nothing", func(t *testing.T) {
		auth := &mockAuth{}
		loginErr := errors.New("user not found")
		auth.On("Login", mock.Anything, "ghost").Return(models.User{}, loginErr)
		store := NewMemoryStore()
		m := NewManager(auth, store, quietLogger())

		_, err := m.Login(ctx, "ghost")
		assert.ErrorIs(t, err, loginErr)

		_, ok, err := store.Load(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Logout clears the store", func(t *testing.T) {
		store := openTestStore(t)
		require.NoError(t, store.Save(ctx, maria))
		m := NewManager(&mockAuth{}, store, quietLogger())

		require.NoError(t, m.Logout(ctx))
		_, ok, err := m.Resume(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Expired identity is not resumed", func(t *testing.T) {
		store := NewMemoryStore()
		expired := maria
		expired.ExpiresAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.Save(ctx, expired))

		m := NewManager(&mockAuth{}, store, quietLogger())
		_, ok, err := m.Resume(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, _ = store.Load(ctx)
		assert.False(t, ok)
	})
}
