// Package apikey validates API keys against the api_keys table. Raw keys
// are generated with crypto/rand and only their SHA-256 digest is stored.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo holds metadata about a key. RateLimit is requests per limiter
// window.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Validator struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewValidator(db *sql.DB) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Validate looks up an active key by the hash of rawKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var info KeyInfo
	var expiresAt sql.NullTime
	err := v.db.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.RateLimit, &info.IsActive, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	if expiresAt.Valid {
		if expiresAt.Time.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// CreateKey stores a new key and returns the raw key with its metadata.
// The raw key cannot be recovered later.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *KeyInfo, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}
	info := &KeyInfo{
		ID:        uuid.NewString(),
		Name:      name,
		RateLimit: rateLimit,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err = v.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, name, rate_limit, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		info.ID, HashKey(rawKey), name, rateLimit, info.CreatedAt, expiry,
	)
	if err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "id", info.ID, "name", name, "rate_limit", rateLimit)
	return rawKey, info, nil
}

// RevokeKey deactivates the key with the given ID.
func (v *Validator) RevokeKey(ctx context.Context, id string) error {
	result, err := v.db.ExecContext(ctx, `UPDATE api_keys SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting revoked keys: %w", err)
	}
	if rows == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "api key %q does not exist", id)
	}
	v.logger.Info("api key revoked", "id", id)
	return nil
}

// ListKeys returns active keys, newest first. Hashes are never returned.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT id, name, rate_limit, is_active, created_at, expires_at FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	keys := []KeyInfo{}
	for rows.Next() {
		var k KeyInfo
		var expiresAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "cr_" + hex.EncodeToString(b), nil
}
