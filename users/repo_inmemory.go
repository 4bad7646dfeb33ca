package users

import (
	"context"
	"fmt"
	"sync"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
)

var _ Store = (*InMemoryStore)(nil)

// dummyHash is compared against when the username is unknown so that both failure paths
// take a bcrypt comparison.
var dummyHash, _ = HashPassword("not-a-real-password")

type InMemoryStore struct {
	byID       map[string]*User
	byUsername map[string]*User
	lock       sync.RWMutex
}

// NewInMemoryStore creates a store holding the given users.
func NewInMemoryStore(users ...*User) (*InMemoryStore, error) {
	s := &InMemoryStore{
		byID:       make(map[string]*User),
		byUsername: make(map[string]*User),
	}
	for _, u := range users {
		if err := s.Upsert(u); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Upsert adds or replaces a user.
func (s *InMemoryStore) Upsert(user *User) error {
	if user == nil || user.ID == "" || user.Username == "" {
		return fmt.Errorf("[InMemoryStore.Upsert] user id and username are required")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if existing, ok := s.byUsername[user.Username]; ok && existing.ID != user.ID {
		return autherrors.Wrapf(autherrors.ErrDuplicate, "[InMemoryStore.Upsert] username %s", user.Username)
	}
	if old, ok := s.byID[user.ID]; ok {
		delete(s.byUsername, old.Username)
	}
	s.byID[user.ID] = user
	s.byUsername[user.Username] = user
	return nil
}

func (s *InMemoryStore) Verify(ctx context.Context, username, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.RLock()
	user, ok := s.byUsername[username]
	s.lock.RUnlock()

	if !ok {
		CheckPasswordHash(password, dummyHash)
		return nil, autherrors.ErrInvalidCredentials
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, autherrors.ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidCredentials, "%s", autherrors.ErrUserDisabled.Error())
	}
	return user, nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "user %s", id)
	}
	return user, nil
}
