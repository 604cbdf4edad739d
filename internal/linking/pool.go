package linking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"modguard/internal/redis"
)

// Job asks the pool to run link detection (and ban propagation) for one
// player, typically after a login from an address the player had not used
// before.
type Job struct {
	TenantID  int64
	PlayerID  string
	Addresses []string
	Enqueued  time.Time
}

type worker struct {
	ID       int
	pool     *Pool
	stopChan chan bool
}

// Pool runs link detection off the login path so connects never wait on
// cross-account scans. Jobs that cannot be queued are dropped, not blocked
// on; a periodic sweep picks up anything missed.
type Pool struct {
	log        *slog.Logger
	detector   *Detector
	propagator *Propagator
	redis      *redis.Client
	jobQueue   chan Job
	workerPool []*worker
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

func NewPool(log *slog.Logger, detector *Detector, propagator *Propagator, redisClient *redis.Client, queueSize int) *Pool {
	if queueSize < 1 {
		queueSize = 10000
	}
	return &Pool{
		log:        log,
		detector:   detector,
		propagator: propagator,
		redis:      redisClient,
		jobQueue:   make(chan Job, queueSize),
		workerPool: make([]*worker, 0),
	}
}

// Enqueue hands a job to the pool without blocking. Returns false when the
// queue is full and the job was dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.log.Warn("link_queue_full",
			"tenant_id", job.TenantID,
			"player_id", job.PlayerID)
		return false
	}
}

func (p *Pool) StartWorkers(workerCount int) {
	if workerCount < 1 {
		workerCount = 4
	}
	if workerCount > 64 {
		workerCount = 64
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < workerCount; i++ {
		w := &worker{
			ID:       i + 1,
			pool:     p,
			stopChan: make(chan bool, 1),
		}
		p.workerPool = append(p.workerPool, w)

		p.wg.Add(1)
		go p.runWorker(w)
	}

	p.log.Info("link_workers_started", "count", workerCount)
}

func (p *Pool) runWorker(w *worker) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.process(ctx, job); err != nil {
				p.log.Warn("link_job_failed",
					"worker_id", w.ID,
					"tenant_id", job.TenantID,
					"player_id", job.PlayerID,
					"error", err,
				)
			}
			cancel()
		case <-w.stopChan:
			p.log.Info("link_worker_stopped", "worker_id", w.ID)
			return
		}
	}
}

func (p *Pool) StopWorkers() {
	p.mu.Lock()

	for _, w := range p.workerPool {
		select {
		case w.stopChan <- true:
		default:
		}
	}

	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("link_workers_stopped")
}

// dedupKey collapses bursts per player AND address set: a reconnect from a
// new address inside the window still gets its own scan, since the fresh
// address is exactly what can produce a new link.
func dedupKey(job Job) string {
	addrs := make([]string, len(job.Addresses))
	copy(addrs, job.Addresses)
	sort.Strings(addrs)
	sum := sha256.Sum256([]byte(strings.Join(addrs, "\n")))
	return fmt.Sprintf("link:dedup:%d:%s:%s", job.TenantID, job.PlayerID, hex.EncodeToString(sum[:8]))
}

func (p *Pool) process(ctx context.Context, job Job) error {
	if p.redis != nil {
		// Collapse bursts: one scan per player per minute is plenty.
		key := dedupKey(job)
		exists, err := p.redis.RDB().Exists(ctx, key).Result()
		if err == nil && exists > 0 {
			return nil
		}
		_ = p.redis.RDB().Set(ctx, key, "1", 60*time.Second).Err()
	}

	linked, err := p.detector.Link(ctx, job.TenantID, job.PlayerID, job.Addresses)
	if err != nil {
		return err
	}

	created, err := p.propagator.Propagate(ctx, job.TenantID, job.PlayerID)
	if err != nil {
		return err
	}
	// New links work both ways: an active alt-blocking ban on the player who
	// just logged in must also reach the accounts we linked them with.
	for _, otherID := range linked {
		if _, err := p.propagator.Propagate(ctx, job.TenantID, otherID); err != nil {
			p.log.Warn("link_back_propagation_failed",
				"tenant_id", job.TenantID,
				"player_id", otherID,
				"error", err)
		}
	}

	if p.redis != nil && (len(linked) > 0 || len(created) > 0) {
		day := time.Now().UTC().Format("2006-01-02")
		if len(linked) > 0 {
			_, _ = p.redis.RDB().IncrBy(ctx, "links:created:"+day, int64(len(linked))).Result()
		}
		if len(created) > 0 {
			_, _ = p.redis.RDB().IncrBy(ctx, "links:bans:"+day, int64(len(created))).Result()
		}
	}
	return nil
}
