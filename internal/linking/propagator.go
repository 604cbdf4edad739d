package linking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"modguard/internal/models"
	"modguard/internal/punish"
)

// LinkedBanIssuer is recorded as the issuer of every propagated ban.
const LinkedBanIssuer = "System (Linked Ban)"

// Propagator copies alt-blocking bans across account links. Each mirrored
// ban records its source punishment ID so a source is never propagated to
// the same player twice, and mirrored bans themselves are never used as
// sources, which bounds propagation at one hop.
type Propagator struct {
	log   *slog.Logger
	store Store
	audit Auditor
	now   func() time.Time
}

func NewPropagator(log *slog.Logger, store Store, audit Auditor) *Propagator {
	return &Propagator{log: log, store: store, audit: audit, now: time.Now}
}

// Propagate inspects every account linked to playerID and mirrors any
// alt-blocking ban still in force onto playerID. Returns the punishments
// created, which may be empty.
func (pr *Propagator) Propagate(ctx context.Context, tenantID int64, playerID string) ([]models.Punishment, error) {
	linked, err := pr.store.LinkedAccounts(ctx, tenantID, playerID)
	if err != nil {
		return nil, fmt.Errorf("load linked accounts: %w", err)
	}
	if len(linked) == 0 {
		return nil, nil
	}

	types, err := pr.store.PunishmentTypes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load punishment types: %w", err)
	}

	now := pr.now()
	var created []models.Punishment
	for _, otherID := range linked {
		puns, err := pr.store.PunishmentsForPlayer(ctx, tenantID, otherID)
		if err != nil {
			pr.log.Error("propagate_load_failed",
				"tenant_id", tenantID, "player_id", otherID, "error", err)
			continue
		}
		for _, src := range puns {
			if !isPropagationSource(src, types, now) {
				continue
			}
			exists, err := pr.store.HasLinkedBan(ctx, tenantID, playerID, src.ID)
			if err != nil {
				pr.log.Error("propagate_check_failed",
					"tenant_id", tenantID, "player_id", playerID, "source_id", src.ID, "error", err)
				continue
			}
			if exists {
				continue
			}

			ban := mirrorBan(src, playerID, otherID, now)
			saved, err := pr.store.CreatePunishment(ctx, tenantID, ban)
			if err != nil {
				pr.log.Error("propagate_create_failed",
					"tenant_id", tenantID, "player_id", playerID, "source_id", src.ID, "error", err)
				continue
			}
			created = append(created, saved)
			pr.log.Info("linked_ban_issued",
				"tenant_id", tenantID,
				"player_id", playerID,
				"source_id", src.ID,
				"source_player", otherID,
				"punishment_id", saved.ID)
			if pr.audit != nil {
				pr.audit.Write(tenantID,
					fmt.Sprintf("Issued linked ban %s on %s (source %s on linked account %s)",
						saved.ID, playerID, src.ID, otherID),
					"WARN", "linked-ban")
			}
		}
	}
	return created, nil
}

// isPropagationSource reports whether src should spread across links: an
// alt-blocking, still-valid ban-class punishment that is not itself a
// linked ban.
func isPropagationSource(src models.Punishment, types []models.PunishmentTypeDef, now time.Time) bool {
	if !src.AltBlocking || src.Type == models.OrdinalLinkedBan {
		return false
	}
	if punish.Classify(src.Type, types) != punish.Ban {
		return false
	}
	return punish.IsValid(src, now)
}

// mirrorBan builds the linked ban issued against playerID's alt. The copy
// expires when the source does; permanent sources, and sources whose
// remaining time has already elapsed, mirror as permanent.
func mirrorBan(src models.Punishment, targetPlayerID, sourcePlayerID string, now time.Time) models.Punishment {
	duration := models.PermanentDuration
	var expires *time.Time
	if v := punish.Resolve(src, now); v.Expiry != nil {
		if remaining := v.Expiry.Sub(now); remaining > 0 {
			duration = remaining.Milliseconds()
			e := *v.Expiry
			expires = &e
		}
	}
	reason := fmt.Sprintf("Linked to banned account %s", sourcePlayerID)
	return models.Punishment{
		PlayerID:    targetPlayerID,
		Type:        models.OrdinalLinkedBan,
		Issued:      now,
		Reason:      reason,
		IssuerName:  LinkedBanIssuer,
		DurationMS:  duration,
		Expires:     expires,
		Active:      true,
		LinkedBanID: src.ID,
	}
}
