package refresh

import (
	"context"
	"sync"
	"time"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
)

var (
	_ Repo   = (*InMemoryRepo)(nil)
	_ Purger = (*InMemoryRepo)(nil)
)

type InMemoryRepo struct {
	tokens map[string]*StoredRefreshToken
	lock   sync.RWMutex
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		tokens: make(map[string]*StoredRefreshToken),
	}
}

func (tr *InMemoryRepo) Store(_ context.Context, refreshToken *StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := *refreshToken
	tr.tokens[refreshToken.Key] = &stored
	return nil
}

func (tr *InMemoryRepo) Remove(_ context.Context, key string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tokens[key]; !ok {
		return autherrors.ErrNotFound
	}
	delete(tr.tokens, key)
	return nil
}

func (tr *InMemoryRepo) Resolve(_ context.Context, key string) (*StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	rt, ok := tr.tokens[key]
	if !ok {
		return nil, autherrors.ErrNotFound
	}
	stored := *rt
	return &stored, nil
}

// Len returns the number of stored grants.
func (tr *InMemoryRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.tokens)
}

// PurgeExpired deletes grants that expired before the given time.
func (tr *InMemoryRepo) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	var removed int64
	for key, rt := range tr.tokens {
		if !rt.ExpiresAt.After(before) {
			delete(tr.tokens, key)
			removed++
		}
	}
	return removed, nil
}
