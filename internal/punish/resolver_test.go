package punish

import (
	"math/rand"
	"testing"
	"time"

	"modguard/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func basePunishment(typ int) models.Punishment {
	return models.Punishment{
		ID:         "abc123",
		PlayerID:   "d2c9a8e1-5f7b-4a6e-9c3d-1b2a3c4d5e6f",
		IssuerName: "staff",
		Issued:     testNow.Add(-24 * time.Hour),
		Type:       typ,
		Active:     true,
	}
}

func TestResolve_NoModifications(t *testing.T) {
	started := testNow.Add(-2 * time.Hour)

	tests := []struct {
		name       string
		durationMS int64
		started    *time.Time
		wantExpiry *time.Time
		wantActive bool
	}{
		{"timed ban expiry from start", 4 * 3600 * 1000, &started, ptr(started.Add(4 * time.Hour)), true},
		{"permanent has no expiry", models.PermanentDuration, &started, nil, true},
		{"unset duration has no expiry", 0, &started, nil, true},
		{"unstarted timed has no expiry yet", 3600 * 1000, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := basePunishment(models.OrdinalManualBan)
			p.DurationMS = tt.durationMS
			p.Started = tt.started

			v := Resolve(p, testNow)
			if v.Active != tt.wantActive {
				t.Errorf("active = %v, want %v", v.Active, tt.wantActive)
			}
			if tt.wantExpiry == nil {
				if v.Expiry != nil {
					t.Errorf("expiry = %v, want nil", v.Expiry)
				}
			} else if v.Expiry == nil || !v.Expiry.Equal(*tt.wantExpiry) {
				t.Errorf("expiry = %v, want %v", v.Expiry, tt.wantExpiry)
			}
		})
	}
}

func TestResolve_PardonDeactivatesRegardlessOfRemainingDuration(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.Started = ptr(testNow.Add(-1 * time.Hour))
	p.DurationMS = 720 * 3600 * 1000 // 30 days left

	for _, kind := range []string{models.ModManualPardon, models.ModAppealAccept} {
		t.Run(kind, func(t *testing.T) {
			q := p
			q.Modifications = []models.Modification{
				{Kind: kind, Actor: "admin", Issued: testNow.Add(-10 * time.Minute)},
			}
			if v := Resolve(q, testNow); v.Active {
				t.Errorf("pardoned punishment still active, verdict %+v", v)
			}
			if IsValid(q, testNow) {
				t.Error("pardoned punishment reported valid")
			}
		})
	}
}

func TestResolve_DurationChangeToPermanentRevivesElapsed(t *testing.T) {
	// Original one-hour ban elapsed long ago; a -1 duration change makes it
	// permanent and active again.
	p := basePunishment(models.OrdinalManualBan)
	p.Started = ptr(testNow.Add(-48 * time.Hour))
	p.DurationMS = 3600 * 1000
	p.Modifications = []models.Modification{
		{Kind: models.ModManualDurationChange, Actor: "admin", Issued: testNow.Add(-5 * time.Minute), EffectiveDurationMS: ptr(models.PermanentDuration)},
	}

	v := Resolve(p, testNow)
	if !v.Active {
		t.Error("punishment should be active after make-permanent change")
	}
	if v.Expiry != nil {
		t.Errorf("expiry = %v, want nil", v.Expiry)
	}
	if !IsValid(p, testNow) {
		t.Error("punishment should be valid")
	}
}

func TestResolve_DurationChangeRecomputesFromModificationInstant(t *testing.T) {
	p := basePunishment(models.OrdinalManualMute)
	p.Started = ptr(testNow.Add(-3 * time.Hour))
	p.DurationMS = 3600 * 1000

	modAt := testNow.Add(-30 * time.Minute)
	p.Modifications = []models.Modification{
		{Kind: models.ModManualDurationChange, Actor: "admin", Issued: modAt, EffectiveDurationMS: ptr(int64(2 * 3600 * 1000))},
	}

	v := Resolve(p, testNow)
	want := modAt.Add(2 * time.Hour)
	if v.Expiry == nil || !v.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", v.Expiry, want)
	}
	if !v.Active {
		t.Error("should be active, new expiry is in the future")
	}

	// a short enough change ends the punishment immediately
	p.Modifications[0].EffectiveDurationMS = ptr(int64(60 * 1000))
	if v := Resolve(p, testNow); v.Active {
		t.Error("elapsed duration change should leave the punishment inactive")
	}
}

// A later duration change overrides an earlier pardon. This mirrors the
// observed production fold (appeal accepted, then staff re-extends) and is
// deliberate: do not reorder the cases to "fix" it.
func TestResolve_DurationChangeAfterPardonReactivates(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.Started = ptr(testNow.Add(-2 * time.Hour))
	p.DurationMS = 3600 * 1000
	p.Modifications = []models.Modification{
		{Kind: models.ModManualPardon, Actor: "admin", Issued: testNow.Add(-90 * time.Minute)},
		{Kind: models.ModManualDurationChange, Actor: "admin", Issued: testNow.Add(-10 * time.Minute), EffectiveDurationMS: ptr(int64(3600 * 1000))},
	}

	if v := Resolve(p, testNow); !v.Active {
		t.Error("later duration change should reactivate the pardoned punishment")
	}

	// and the reverse order keeps the pardon as the final word
	p.Modifications[0].Issued, p.Modifications[1].Issued = p.Modifications[1].Issued, p.Modifications[0].Issued
	if v := Resolve(p, testNow); v.Active {
		t.Error("pardon issued last should deactivate")
	}
}

func TestResolve_InputOrderIndependent(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.Started = ptr(testNow.Add(-6 * time.Hour))
	p.DurationMS = 3600 * 1000
	mods := []models.Modification{
		{Kind: models.ModManualDurationChange, Actor: "a", Issued: testNow.Add(-5 * time.Hour), EffectiveDurationMS: ptr(int64(10 * 3600 * 1000))},
		{Kind: models.ModManualPardon, Actor: "b", Issued: testNow.Add(-4 * time.Hour)},
		{Kind: models.ModManualDurationChange, Actor: "c", Issued: testNow.Add(-3 * time.Hour), EffectiveDurationMS: ptr(int64(8 * 3600 * 1000))},
		{Kind: models.ModAppealAccept, Actor: "d", Issued: testNow.Add(-2 * time.Hour)},
	}

	p.Modifications = mods
	want := Resolve(p, testNow)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]models.Modification, len(mods))
		copy(shuffled, mods)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		p.Modifications = shuffled
		got := Resolve(p, testNow)
		if got.Active != want.Active {
			t.Fatalf("shuffle %d: active = %v, want %v", i, got.Active, want.Active)
		}
		switch {
		case got.Expiry == nil && want.Expiry == nil:
		case got.Expiry == nil || want.Expiry == nil || !got.Expiry.Equal(*want.Expiry):
			t.Fatalf("shuffle %d: expiry = %v, want %v", i, got.Expiry, want.Expiry)
		}
	}
}

func TestIsActive_RequiresStartForBansAndMutes(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.DurationMS = models.PermanentDuration

	if IsActive(p, nil, testNow) {
		t.Error("unstarted ban must not be active")
	}
	if !IsValid(p, testNow) {
		t.Error("unstarted ban is still valid (eligible to start)")
	}

	p.Started = ptr(testNow.Add(-time.Hour))
	if !IsActive(p, nil, testNow) {
		t.Error("started permanent ban should be active")
	}
}

func TestIsActive_KicksNever(t *testing.T) {
	p := basePunishment(models.OrdinalKick)
	p.Started = ptr(testNow.Add(-time.Minute))
	if IsActive(p, nil, testNow) {
		t.Error("kicks are instantaneous and never active")
	}
}
