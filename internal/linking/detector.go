package linking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"modguard/internal/models"
)

// Detector finds accounts that share IP addresses with a player and
// records bidirectional links between them.
type Detector struct {
	log    *slog.Logger
	store  Store
	audit  Auditor
	window time.Duration
}

func NewDetector(log *slog.Logger, store Store, audit Auditor, proxyWindow time.Duration) *Detector {
	return &Detector{
		log:    log,
		store:  store,
		audit:  audit,
		window: proxyWindow,
	}
}

// Link scans the given addresses of playerID for other accounts seen on the
// same IPs and links every qualifying pair. Addresses the player has no
// record for are skipped. Returns the player IDs of newly linked accounts.
func (d *Detector) Link(ctx context.Context, tenantID int64, playerID string, addrs []string) ([]string, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	mine, err := d.store.IPRecordsFor(ctx, tenantID, playerID, addrs)
	if err != nil {
		return nil, fmt.Errorf("load own ip records: %w", err)
	}
	if len(mine) == 0 {
		return nil, nil
	}

	scan := make([]string, 0, len(mine))
	for addr := range mine {
		scan = append(scan, addr)
	}

	others, err := d.store.RecordsForAddresses(ctx, tenantID, scan, playerID)
	if err != nil {
		return nil, fmt.Errorf("load shared ip records: %w", err)
	}

	var linked []string
	seen := map[string]bool{}
	for _, rec := range others {
		if seen[rec.PlayerID] {
			continue
		}
		my, ok := mine[rec.Address]
		if !ok || !shouldLink(my, rec, d.window) {
			continue
		}
		seen[rec.PlayerID] = true

		isNew, err := d.store.AddLink(ctx, tenantID, playerID, rec.PlayerID)
		if err != nil {
			d.log.Error("link_write_failed",
				"tenant_id", tenantID,
				"player_id", playerID,
				"other_id", rec.PlayerID,
				"error", err)
			continue
		}
		if !isNew {
			continue
		}
		linked = append(linked, rec.PlayerID)
		d.log.Info("accounts_linked",
			"tenant_id", tenantID,
			"player_id", playerID,
			"other_id", rec.PlayerID,
			"address", rec.Address)
		if d.audit != nil {
			d.audit.Write(tenantID,
				fmt.Sprintf("Linked accounts %s and %s (shared IP %s)", playerID, rec.PlayerID, rec.Address),
				"INFO", "link-detector")
		}
	}
	return linked, nil
}

// shouldLink decides whether two IP records on the same address justify a
// link. A shared IP links unconditionally unless both sides are flagged as
// proxy or hosting traffic; in that case the accounts link only when their
// most recent logins on the address fall within the proxy window of each
// other (boundary inclusive).
func shouldLink(a, b models.IPRecord, window time.Duration) bool {
	if !a.Proxy || !b.Proxy {
		return true
	}
	gap := a.LastLogin().Sub(b.LastLogin())
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}
