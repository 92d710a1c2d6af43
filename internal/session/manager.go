package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

// Authenticator resolves a username to an identity.
type Authenticator interface {
	Login(ctx context.Context, username string) (models.User, error)
}

// Manager ties login and logout to a Store.
type Manager struct {
	api   Authenticator
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewManager(api Authenticator, store Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{api: api, store: store, log: log, now: time.Now}
}

// Resume returns the stored identity when there is one and it has not
// expired. An expired identity is cleared.
func (m *Manager) Resume(ctx context.Context) (models.User, bool, error) {
	u, ok, err := m.store.Load(ctx)
	if err != nil || !ok {
		return models.User{}, false, err
	}
	if u.Expired(m.now()) {
		m.log.Info("stored session expired", "user", u.ID)
		if err := m.store.Clear(ctx); err != nil {
			return models.User{}, false, err
		}
		return models.User{}, false, nil
	}
	return u, true, nil
}

// Login authenticates username and stores the result. Nothing is stored
// when authentication fails.
func (m *Manager) Login(ctx context.Context, username string) (models.User, error) {
	u, err := m.api.Login(ctx, username)
	if err != nil {
		return models.User{}, err
	}
	if err := m.store.Save(ctx, u); err != nil {
		return models.User{}, err
	}
	m.log.Info("logged in", "user", u.ID, "username", u.Username)
	return u, nil
}

// Logout forgets the stored identity.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.log.Info("logged out")
	return nil
}
