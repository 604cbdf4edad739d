package punish

import (
	"sort"
	"time"

	"modguard/internal/models"
)

// Selection holds the punishments chosen for delivery to the client on one
// login/sync response.
type Selection struct {
	Bans  []models.Punishment
	Mutes []models.Punishment
}

// SelectPending picks the unstarted punishments to surface to the client,
// capped at perKind entries per enforcement class. Candidates must be valid
// and not yet started; kicks are never pending. Candidates issued at or
// after the caller's last-sync watermark take priority; when none are that
// recent, the oldest valid unstarted one of each kind is delivered instead.
//
// The cap is admission control, not an oversight: a player with five stacked
// bans receives one until it is acknowledged as started.
func SelectPending(puns []models.Punishment, types []models.PunishmentTypeDef, lastSync, now time.Time, perKind int) Selection {
	if perKind < 1 {
		perKind = 1
	}

	var bans, mutes []models.Punishment
	for _, p := range puns {
		if p.Started != nil || !IsValid(p, now) {
			continue
		}
		switch Classify(p.Type, types) {
		case Ban:
			bans = append(bans, p)
		case Mute:
			mutes = append(mutes, p)
		}
	}

	return Selection{
		Bans:  pick(bans, lastSync, perKind),
		Mutes: pick(mutes, lastSync, perKind),
	}
}

func pick(candidates []models.Punishment, lastSync time.Time, limit int) []models.Punishment {
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Issued.Before(candidates[j].Issued)
	})

	var recent []models.Punishment
	if !lastSync.IsZero() {
		for _, p := range candidates {
			if !p.Issued.Before(lastSync) {
				recent = append(recent, p)
			}
		}
	}

	pool := candidates
	if len(recent) > 0 {
		pool = recent
	}
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}
