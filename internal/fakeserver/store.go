// Package fakeserver is an in-memory stand-in for the matching backend. It
// serves the REST endpoints and the match push channel the client talks to,
// and is used by integration tests and local development.
package fakeserver

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

var (
	ErrUnknownAccount = errors.New("account not found")
	ErrUnknownDev     = errors.New("dev not found")
	ErrSelfDecision   = errors.New("cannot decide on yourself")
	ErrAlreadyLiked   = errors.New("already liked")
)

// Account is a known username that may log in. It stands in for the external
// directory the real backend looks usernames up in.
type Account struct {
	Username string
	Name     string
	Bio      string
	Avatar   string
}

// Dev is a registered user.
type Dev struct {
	ID       string
	Username string
	Name     string
	Bio      string
	Avatar   string

	likes    map[string]struct{}
	dislikes map[string]struct{}
}

func (d *Dev) profile() models.Profile {
	return models.Profile{ID: d.ID, Name: d.Name, Bio: d.Bio, Avatar: d.Avatar}
}

// Store holds accounts, registered devs and their decisions.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]Account // by lowercase username
	devs       map[string]*Dev
	byUsername map[string]*Dev
	order      []string // registration order
}

func NewStore() *Store {
	return &Store{
		accounts:   make(map[string]Account),
		devs:       make(map[string]*Dev),
		byUsername: make(map[string]*Dev),
	}
}

func key(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// AddAccount makes username available for login.
func (s *Store) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Name == "" {
		a.Name = a.Username
	}
	s.accounts[key(a.Username)] = a
}

// Login returns the dev for username, registering it on first login.
// created reports whether a new dev was registered.
func (s *Store) Login(username string) (dev Dev, created bool, err error) {
	k := key(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.byUsername[k]; ok {
		return *d, false, nil
	}
	acc, ok := s.accounts[k]
	if !ok {
		return Dev{}, false, ErrUnknownAccount
	}

	d := &Dev{
		ID:       uuid.NewString(),
		Username: acc.Username,
		Name:     acc.Name,
		Bio:      acc.Bio,
		Avatar:   acc.Avatar,
		likes:    make(map[string]struct{}),
		dislikes: make(map[string]struct{}),
	}
	s.devs[d.ID] = d
	s.byUsername[k] = d
	s.order = append(s.order, d.ID)
	return *d, true, nil
}

// Register creates the account and logs it in. Used for seeding.
func (s *Store) Register(a Account) Dev {
	s.AddAccount(a)
	d, _, _ := s.Login(a.Username)
	return d
}

// Get returns the dev with id.
func (s *Store) Get(id string) (Dev, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devs[id]
	if !ok {
		return Dev{}, false
	}
	return *d, true
}

// Queue returns every dev userID has not decided on, excluding userID, in
// registration order.
func (s *Store) Queue(userID string) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	me, ok := s.devs[userID]
	if !ok {
		return nil, ErrUnknownDev
	}

	out := make([]models.Profile, 0, len(s.order))
	for _, id := range s.order {
		if id == me.ID {
			continue
		}
		if _, liked := me.likes[id]; liked {
			continue
		}
		if _, disliked := me.dislikes[id]; disliked {
			continue
		}
		out = append(out, s.devs[id].profile())
	}
	return out, nil
}

// Like records userID liking targetID. matched is true when the target had
// already liked userID back. A repeated like returns ErrAlreadyLiked and
// changes nothing.
func (s *Store) Like(userID, targetID string) (me, target models.Profile, matched bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, t, err := s.pair(userID, targetID)
	if err != nil {
		return models.Profile{}, models.Profile{}, false, err
	}
	if _, dup := u.likes[t.ID]; dup {
		return u.profile(), t.profile(), false, ErrAlreadyLiked
	}

	u.likes[t.ID] = struct{}{}
	delete(u.dislikes, t.ID)
	_, matched = t.likes[u.ID]
	return u.profile(), t.profile(), matched, nil
}

// Dislike records userID disliking targetID. Repeating it is harmless.
func (s *Store) Dislike(userID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, t, err := s.pair(userID, targetID)
	if err != nil {
		return err
	}
	u.dislikes[t.ID] = struct{}{}
	return nil
}

func (s *Store) pair(userID, targetID string) (*Dev, *Dev, error) {
	if userID == targetID {
		return nil, nil, ErrSelfDecision
	}
	u, ok := s.devs[userID]
	if !ok {
		return nil, nil, ErrUnknownDev
	}
	t, ok := s.devs[targetID]
	if !ok {
		return nil, nil, ErrUnknownDev
	}
	return u, t, nil
}
