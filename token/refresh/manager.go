package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// DefaultTokenLength is the number of random bytes in a refresh token handle.
const DefaultTokenLength = 32 // 32 bytes = 256 bits

// Manager handles refresh token creation, resolution and consumption
type Manager struct {
	repo        Repo
	tokenLength int
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, tokenLength int) *Manager {
	if tokenLength <= 0 {
		tokenLength = DefaultTokenLength
	}
	return &Manager{
		repo:        repo,
		tokenLength: tokenLength,
	}
}

// HashHandle returns the storage key of a refresh token handle.
func HashHandle(handle string) string {
	sum := sha256.Sum256([]byte(handle))
	return hex.EncodeToString(sum[:])
}

// Create generates a new refresh token handle and stores the grant under its hash.
// The grant is committed once Create returns without error.
func (m *Manager) Create(ctx context.Context, grant StoredRefreshToken, lifetime time.Duration) (string, error) {
	tokenBytes := make([]byte, m.tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	handle := hex.EncodeToString(tokenBytes)

	now := NowTimeFunc()
	grant.Key = HashHandle(handle)
	grant.CreatedAt = now
	grant.ExpiresAt = now.Add(lifetime)
	if err := m.repo.Store(ctx, &grant); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return handle, nil
}

// Resolve looks up the grant for a handle and checks it is bound to the client and still valid.
// Unknown, expired and foreign handles all wrap errors.ErrInvalidRefreshToken.
func (m *Manager) Resolve(ctx context.Context, handle, clientID string) (*StoredRefreshToken, error) {
	if handle == "" {
		return nil, autherrors.ErrInvalidRefreshToken
	}
	rt, err := m.repo.Resolve(ctx, HashHandle(handle))
	if autherrors.Is(err, autherrors.ErrNotFound) {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRefreshToken, "unknown handle")
	}
	if err != nil {
		return nil, fmt.Errorf("[Manager.Resolve] %w", err)
	}
	if rt.ClientID != clientID {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRefreshToken, "handle bound to another client")
	}
	if m.IsExpired(rt) {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRefreshToken, "%s", autherrors.ErrRefreshTokenExpired.Error())
	}
	return rt, nil
}

// Consume removes a one-time refresh token after it has been exchanged.
func (m *Manager) Consume(ctx context.Context, rt *StoredRefreshToken) error {
	if err := m.repo.Remove(ctx, rt.Key); err != nil {
		if autherrors.Is(err, autherrors.ErrNotFound) {
			// Consumed concurrently by another request.
			return autherrors.Wrapf(autherrors.ErrInvalidRefreshToken, "already consumed")
		}
		return fmt.Errorf("[Manager.Consume] %w", err)
	}
	return nil
}

// Restore puts a consumed grant back under its original handle. It is used when the
// exchange that consumed it fails before a replacement was issued.
func (m *Manager) Restore(ctx context.Context, rt *StoredRefreshToken) error {
	if err := m.repo.Store(ctx, rt); err != nil {
		return fmt.Errorf("[Manager.Restore] %w", err)
	}
	return nil
}

// IsExpired checks if a refresh token has expired
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return !NowTimeFunc().Before(rt.ExpiresAt)
}
