package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/token/refresh"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

const (
	storeQuery = `INSERT INTO refresh_tokens (key, client_id, subject, amr, scopes, claims, auth_time, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (key) DO UPDATE SET
    client_id = EXCLUDED.client_id,
    subject = EXCLUDED.subject,
    amr = EXCLUDED.amr,
    scopes = EXCLUDED.scopes,
    claims = EXCLUDED.claims,
    auth_time = EXCLUDED.auth_time,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at`

	resolveQuery = `SELECT key, client_id, subject, amr, scopes, claims, auth_time, created_at, expires_at
FROM refresh_tokens WHERE key = $1`

	removeQuery = `DELETE FROM refresh_tokens WHERE key = $1`

	purgeQuery = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
)

var (
	_ refresh.Repo   = (*Store)(nil)
	_ refresh.Purger = (*Store)(nil)
)

// Store keeps refresh token grants in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the database using the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("[postgres.Open] open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[postgres.Open] ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Store(ctx context.Context, rt *refresh.StoredRefreshToken) error {
	amr, err := json.Marshal(nonNil(rt.AMR))
	if err != nil {
		return fmt.Errorf("[Store.Store] marshal amr: %w", err)
	}
	scopes, err := json.Marshal(rt.Scopes)
	if err != nil {
		return fmt.Errorf("[Store.Store] marshal scopes: %w", err)
	}
	claims, err := json.Marshal(rt.Claims)
	if err != nil {
		return fmt.Errorf("[Store.Store] marshal claims: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, storeQuery,
		rt.Key, rt.ClientID, rt.Subject, amr, scopes, claims,
		rt.AuthTime.UTC(), rt.CreatedAt.UTC(), rt.ExpiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("[Store.Store] insert: %w", err)
	}
	return nil
}

func (s *Store) Resolve(ctx context.Context, key string) (*refresh.StoredRefreshToken, error) {
	var (
		rt                  refresh.StoredRefreshToken
		amr, scopes, claims []byte
	)
	err := s.db.QueryRowContext(ctx, resolveQuery, key).Scan(
		&rt.Key, &rt.ClientID, &rt.Subject, &amr, &scopes, &claims,
		&rt.AuthTime, &rt.CreatedAt, &rt.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[Store.Resolve] select: %w", err)
	}
	if err := json.Unmarshal(amr, &rt.AMR); err != nil {
		return nil, fmt.Errorf("[Store.Resolve] unmarshal amr: %w", err)
	}
	if err := json.Unmarshal(scopes, &rt.Scopes); err != nil {
		return nil, fmt.Errorf("[Store.Resolve] unmarshal scopes: %w", err)
	}
	if err := json.Unmarshal(claims, &rt.Claims); err != nil {
		return nil, fmt.Errorf("[Store.Resolve] unmarshal claims: %w", err)
	}
	return &rt, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, removeQuery, key)
	if err != nil {
		return fmt.Errorf("[Store.Remove] delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("[Store.Remove] rows affected: %w", err)
	}
	if n == 0 {
		return autherrors.ErrNotFound
	}
	return nil
}

// PurgeExpired deletes grants that expired before the given time.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeQuery, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("[Store.PurgeExpired] delete: %w", err)
	}
	return res.RowsAffected()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
