package linking

import (
	"context"

	"modguard/internal/models"
)

// Store is the slice of the tenant data store the linking engine touches.
// *store.Store satisfies it; tests use an in-memory fake.
type Store interface {
	IPRecordsFor(ctx context.Context, tenantID int64, playerID string, addrs []string) (map[string]models.IPRecord, error)
	RecordsForAddresses(ctx context.Context, tenantID int64, addrs []string, excludePlayerID string) ([]models.IPRecord, error)
	AddLink(ctx context.Context, tenantID int64, playerA, playerB string) (bool, error)
	LinkedAccounts(ctx context.Context, tenantID int64, playerID string) ([]string, error)

	PunishmentsForPlayer(ctx context.Context, tenantID int64, playerID string) ([]models.Punishment, error)
	HasLinkedBan(ctx context.Context, tenantID int64, playerID, sourcePunishmentID string) (bool, error)
	CreatePunishment(ctx context.Context, tenantID int64, p models.Punishment) (models.Punishment, error)
	PunishmentTypes(ctx context.Context, tenantID int64) ([]models.PunishmentTypeDef, error)
}

// Auditor is the audit-log sink. Implementations must never fail the caller.
type Auditor interface {
	Write(tenantID int64, message, level, source string)
}
