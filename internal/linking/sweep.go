package linking

import (
	"context"
	"log/slog"
	"time"
)

// SweepStore is what the periodic sweep needs beyond Store.
type SweepStore interface {
	TenantIDs(ctx context.Context) ([]int64, error)
	RecentlyActivePlayers(ctx context.Context, tenantID int64, since time.Time, limit, offset int) ([]string, error)
	AddressesForPlayer(ctx context.Context, tenantID int64, playerID string) ([]string, error)
}

// Sweep periodically re-runs link detection over recently active players.
// It catches logins whose queued jobs were dropped and bans issued after
// the accounts were last scanned.
type Sweep struct {
	log        *slog.Logger
	store      SweepStore
	detector   *Detector
	propagator *Propagator
	interval   time.Duration
	lookback   time.Duration
	stopChan   chan bool
}

func NewSweep(log *slog.Logger, store SweepStore, detector *Detector, propagator *Propagator) *Sweep {
	return &Sweep{
		log:        log,
		store:      store,
		detector:   detector,
		propagator: propagator,
		interval:   1 * time.Hour,
		lookback:   24 * time.Hour,
		stopChan:   make(chan bool, 1),
	}
}

func (sw *Sweep) Start() {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	// Run immediately on start
	go sw.runCycle(context.Background())

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			sw.runCycle(ctx)
			cancel()
		case <-sw.stopChan:
			sw.log.Info("link_sweep_stopped")
			return
		}
	}
}

func (sw *Sweep) Stop() {
	select {
	case sw.stopChan <- true:
	default:
	}
}

func (sw *Sweep) runCycle(ctx context.Context) {
	sw.log.Info("link_sweep_started")

	tenants, err := sw.store.TenantIDs(ctx)
	if err != nil {
		sw.log.Warn("link_sweep_tenants_failed", "error", err)
		return
	}

	since := time.Now().Add(-sw.lookback)
	batchSize := 1000

	for _, tenantID := range tenants {
		offset := 0
		for {
			players, err := sw.store.RecentlyActivePlayers(ctx, tenantID, since, batchSize, offset)
			if err != nil {
				sw.log.Warn("link_sweep_batch_failed", "tenant_id", tenantID, "error", err)
				break
			}
			if len(players) == 0 {
				break
			}

			for _, playerID := range players {
				select {
				case <-ctx.Done():
					sw.log.Info("link_sweep_cancelled")
					return
				default:
				}

				addrs, err := sw.store.AddressesForPlayer(ctx, tenantID, playerID)
				if err != nil {
					sw.log.Warn("link_sweep_addresses_failed",
						"tenant_id", tenantID, "player_id", playerID, "error", err)
					continue
				}
				if _, err := sw.detector.Link(ctx, tenantID, playerID, addrs); err != nil {
					sw.log.Warn("link_sweep_detect_failed",
						"tenant_id", tenantID, "player_id", playerID, "error", err)
					continue
				}
				if _, err := sw.propagator.Propagate(ctx, tenantID, playerID); err != nil {
					sw.log.Warn("link_sweep_propagate_failed",
						"tenant_id", tenantID, "player_id", playerID, "error", err)
				}
			}

			offset += batchSize

			// Small delay between batches
			time.Sleep(100 * time.Millisecond)
		}
	}

	sw.log.Info("link_sweep_completed")
}
