package clients

import (
	"context"
	"fmt"
	"sort"
	"sync"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a client catalog loaded once at startup.
type InMemoryRepo struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

// NewInMemoryRepo creates a catalog from the given clients. Duplicate ids are rejected.
func NewInMemoryRepo(clients ...*Client) (*InMemoryRepo, error) {
	r := &InMemoryRepo{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("[NewInMemoryRepo] client id is required")
		}
		if _, ok := r.clients[c.ID]; ok {
			return nil, autherrors.Wrapf(autherrors.ErrDuplicate, "[NewInMemoryRepo] client %s", c.ID)
		}
		r.clients[c.ID] = c
	}
	return r, nil
}

func (r *InMemoryRepo) Get(_ context.Context, clientID string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "client %s", clientID)
	}
	return client, nil
}

func (r *InMemoryRepo) List(_ context.Context) ([]*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, v := range r.clients {
		clients = append(clients, v)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID < clients[j].ID
	})
	return clients, nil
}
