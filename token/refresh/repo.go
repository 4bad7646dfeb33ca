package refresh

import (
	"context"
	"time"

	"github.com/jrsteele09/go-token-server/oauthmodel"
)

// StoredRefreshToken represents the server-side storage of a refresh token grant.
// The client only receives the opaque handle. The store is keyed by the SHA-256 of the
// handle so a leaked store does not leak usable tokens.
type StoredRefreshToken struct {
	Key       string                   `json:"key"`       // hex(sha256(handle))
	ClientID  string                   `json:"client_id"` // Client the grant is bound to
	Subject   string                   `json:"subject"`   // End user the grant was issued for
	AMR       []string                 `json:"amr"`       // Authentication methods of the original grant
	Scopes    []oauthmodel.ParsedScope `json:"scopes"`    // Scopes of the original grant
	Claims    map[string]any           `json:"claims"`    // Validator claims of the original grant
	AuthTime  time.Time                `json:"auth_time"` // When the subject authenticated
	CreatedAt time.Time                `json:"created_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// Repo manages server-side storage of refresh token grants.
type Repo interface {
	Store(ctx context.Context, token *StoredRefreshToken) error
	// Resolve returns the grant for a key, or errors.ErrNotFound.
	Resolve(ctx context.Context, key string) (*StoredRefreshToken, error)
	// Remove deletes a grant. Removing an unknown key returns errors.ErrNotFound.
	Remove(ctx context.Context, key string) error
}

// Purger is implemented by stores that can drop expired grants in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
