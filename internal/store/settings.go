package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"modguard/internal/models"
)

// PunishmentTypes loads the tenant's custom punishment-type definitions.
// Read fresh on every call that classifies or describes punishments; staff
// settings edits take effect on the next request without invalidation
// plumbing.
func (s *Store) PunishmentTypes(ctx context.Context, tenantID int64) ([]models.PunishmentTypeDef, error) {
	var raw []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT value FROM tenant_settings WHERE tenant_id = $1 AND key = 'punishmentTypes'`,
		tenantID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load punishment types: %w", err)
	}

	var types []models.PunishmentTypeDef
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, fmt.Errorf("parse punishment types: %w", err)
	}
	return types, nil
}

// Setting loads one keyed tenant setting into out. Returns false when unset.
func (s *Store) Setting(ctx context.Context, tenantID int64, key string, out any) (bool, error) {
	var raw []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT value FROM tenant_settings WHERE tenant_id = $1 AND key = $2`,
		tenantID, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}
