package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"modguard/internal/models"
)

var ErrTenantNotFound = errors.New("tenant not found")

// TenantByAPIKey resolves a raw tenant API key to its tenant row. Keys are
// stored as SHA-256 hashes only; the raw key never touches the database.
func (s *Store) TenantByAPIKey(ctx context.Context, apiKey string) (models.Tenant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return models.Tenant{}, ErrTenantNotFound
	}

	sum := sha256.Sum256([]byte(apiKey))
	hash := hex.EncodeToString(sum[:])

	var t models.Tenant
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE api_key_hash = $1`,
		hash,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return models.Tenant{}, err
	}
	return t, nil
}
