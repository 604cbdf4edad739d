package punish

import (
	"sort"
	"time"

	"modguard/internal/models"
)

// Verdict is the effective state of a punishment after folding its
// modification log. Expiry == nil means the punishment never expires.
type Verdict struct {
	Active bool
	Expiry *time.Time
}

// Resolve folds a punishment's modifications, sorted ascending by issued
// time, over its declared active flag and expiry. The fold is a single pass
// and depends only on the stored record plus the supplied clock.
//
// A pardon sets the punishment inactive; a later duration change can still
// reactivate it by recomputing the expiry from the modification's own issued
// instant. That ordering behavior is load-bearing (appeal accepted, then a
// staff member re-extends) and must not be "corrected" here.
func Resolve(p models.Punishment, now time.Time) Verdict {
	active := p.Active
	var expiry *time.Time

	if p.Expires != nil {
		e := *p.Expires
		expiry = &e
	} else if p.Started != nil && p.DurationMS > 0 {
		e := p.Started.Add(time.Duration(p.DurationMS) * time.Millisecond)
		expiry = &e
	}

	mods := make([]models.Modification, len(p.Modifications))
	copy(mods, p.Modifications)
	sort.SliceStable(mods, func(i, j int) bool {
		return mods[i].Issued.Before(mods[j].Issued)
	})

	for _, m := range mods {
		switch m.Kind {
		case models.ModManualPardon, models.ModAppealAccept:
			active = false
		case models.ModManualDurationChange:
			if m.EffectiveDurationMS == nil {
				continue
			}
			d := *m.EffectiveDurationMS
			if d <= 0 {
				// 0 and -1 both mean: permanent from here on
				expiry = nil
				active = true
				continue
			}
			e := m.Issued.Add(time.Duration(d) * time.Millisecond)
			expiry = &e
			active = e.After(now)
		}
	}

	return Verdict{Active: active, Expiry: expiry}
}

// IsValid reports whether the punishment is effectively active and not yet
// expired, ignoring whether enforcement has started. This is the eligibility
// check for handing a punishment to the client at all.
func IsValid(p models.Punishment, now time.Time) bool {
	v := Resolve(p, now)
	if !v.Active {
		return false
	}
	return v.Expiry == nil || v.Expiry.After(now)
}

// IsActive reports whether the punishment is currently being enforced.
// Ban- and mute-class punishments additionally require a started instant;
// kicks are instantaneous and never "active".
func IsActive(p models.Punishment, types []models.PunishmentTypeDef, now time.Time) bool {
	if Classify(p.Type, types) == Kick {
		return false
	}
	if !IsValid(p, now) {
		return false
	}
	return p.Started != nil
}
