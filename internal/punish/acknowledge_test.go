package punish

import (
	"testing"
	"time"

	"modguard/internal/models"
)

func TestExecutionExpiry(t *testing.T) {
	executed := testNow.Add(30 * time.Minute)

	tests := []struct {
		name       string
		durationMS int64
		want       *time.Time
	}{
		{"timed runs from execution", 2 * 3600 * 1000, ptr(executed.Add(2 * time.Hour))},
		{"permanent has none", models.PermanentDuration, nil},
		{"unset duration has none", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExecutionExpiry(tt.durationMS, executed)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expiry = %v, want nil", got)
				}
			} else if got == nil || !got.Equal(*tt.want) {
				t.Errorf("expiry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAcknowledge_FirstStartsAndFixesExpiry(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.DurationMS = 3600 * 1000
	executed := testNow.Add(10 * time.Minute)

	got := Acknowledge(p, executed)

	if got.Started == nil || !got.Started.Equal(executed) {
		t.Fatalf("started = %v, want %v", got.Started, executed)
	}
	// expiry counts from execution, not from issue
	want := executed.Add(time.Hour)
	if got.Expires == nil || !got.Expires.Equal(want) {
		t.Errorf("expires = %v, want %v", got.Expires, want)
	}
	if got.AcknowledgedAt == nil || !got.AcknowledgedAt.Equal(executed) {
		t.Errorf("acknowledged_at = %v, want %v", got.AcknowledgedAt, executed)
	}
}

func TestAcknowledge_PermanentKeepsNoExpiry(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.DurationMS = models.PermanentDuration

	got := Acknowledge(p, testNow)
	if got.Expires != nil {
		t.Errorf("expires = %v, want nil", got.Expires)
	}
	if got.Started == nil || !got.Started.Equal(testNow) {
		t.Errorf("started = %v, want %v", got.Started, testNow)
	}
}

func TestAcknowledge_RepeatLeavesStartAndExpiry(t *testing.T) {
	p := basePunishment(models.OrdinalManualBan)
	p.DurationMS = 3600 * 1000
	first := testNow.Add(5 * time.Minute)
	second := testNow.Add(45 * time.Minute)

	once := Acknowledge(p, first)
	twice := Acknowledge(once, second)

	if !twice.Started.Equal(first) {
		t.Errorf("started moved to %v, want %v", twice.Started, first)
	}
	if !twice.Expires.Equal(first.Add(time.Hour)) {
		t.Errorf("expires moved to %v, want %v", twice.Expires, first.Add(time.Hour))
	}
	if !twice.AcknowledgedAt.Equal(second) {
		t.Errorf("acknowledged_at = %v, want %v", twice.AcknowledgedAt, second)
	}
}

func TestAcknowledge_ClearsRecordedFailure(t *testing.T) {
	p := basePunishment(models.OrdinalManualMute)
	p.DurationMS = 3600 * 1000
	p.ExecFailedAt = ptr(testNow.Add(-time.Minute))
	p.ExecError = "player vanished mid-kick"

	// a recorded failure keeps the punishment deliverable until it succeeds
	sel := SelectPending([]models.Punishment{p}, nil, time.Time{}, testNow, 1)
	if len(sel.Mutes) != 1 {
		t.Fatalf("pending mutes = %d, want 1", len(sel.Mutes))
	}

	got := Acknowledge(p, testNow)
	if got.ExecFailedAt != nil || got.ExecError != "" {
		t.Errorf("failure not cleared: at=%v err=%q", got.ExecFailedAt, got.ExecError)
	}

	// once started it leaves the pending pool, so it is not re-delivered
	sel = SelectPending([]models.Punishment{got}, nil, time.Time{}, testNow, 1)
	if len(sel.Mutes) != 0 {
		t.Errorf("pending mutes after acknowledge = %d, want 0", len(sel.Mutes))
	}
}
