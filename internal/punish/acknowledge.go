package punish

import (
	"time"

	"modguard/internal/models"
)

// ExecutionExpiry computes the expiry fixed by a confirmed execution:
// executedAt plus the punishment's duration. Non-positive durations are
// permanent and carry no expiry.
func ExecutionExpiry(durationMS int64, executedAt time.Time) *time.Time {
	if durationMS <= 0 {
		return nil
	}
	e := executedAt.Add(time.Duration(durationMS) * time.Millisecond)
	return &e
}

// Acknowledge applies a successful execution acknowledgement. started is
// set at most once: the first acknowledgement starts the punishment, clears
// any recorded execution failure and fixes the expiry from the execution
// instant; repeats only refresh acknowledged_at.
func Acknowledge(p models.Punishment, executedAt time.Time) models.Punishment {
	ack := executedAt
	p.AcknowledgedAt = &ack
	if p.Started != nil {
		return p
	}

	st := executedAt
	p.Started = &st
	p.ExecFailedAt = nil
	p.ExecError = ""
	if e := ExecutionExpiry(p.DurationMS, executedAt); e != nil {
		p.Expires = e
	}
	return p
}
