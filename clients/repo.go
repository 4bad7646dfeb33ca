package clients

import "context"

// Repo is the client catalog. Clients are read-only once loaded.
type Repo interface {
	Get(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context) ([]*Client, error)
}
