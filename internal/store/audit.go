package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modguard/internal/db"
)

// AuditSink accepts (message, level, source) entries and never propagates
// failure to its caller: a broken audit path must not abort the moderation
// action that produced the entry. Entries are buffered in memory and flushed
// to audit_log in COPY batches.
type AuditSink struct {
	log   *slog.Logger
	db    *db.DB
	queue chan auditEntry
	done  chan struct{}
	wg    sync.WaitGroup
}

type auditEntry struct {
	tenantID  int64
	message   string
	level     string
	source    string
	createdAt time.Time
}

const (
	auditFlushInterval = 2 * time.Second
	auditFlushSize     = 200
)

func NewAuditSink(log *slog.Logger, dbConn *db.DB) *AuditSink {
	a := &AuditSink{
		log:   log,
		db:    dbConn,
		queue: make(chan auditEntry, 10000),
		done:  make(chan struct{}),
	}

	a.wg.Add(1)
	go a.run()
	return a
}

// Write enqueues an audit entry. Non-blocking: when the buffer is full the
// entry is dropped and counted in the service log instead.
func (a *AuditSink) Write(tenantID int64, message, level, source string) {
	if level == "" {
		level = "info"
	}
	select {
	case a.queue <- auditEntry{tenantID: tenantID, message: message, level: level, source: source, createdAt: time.Now()}:
	default:
		a.log.Warn("audit_entry_dropped", "tenant_id", tenantID, "source", source)
	}
}

func (a *AuditSink) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	buf := make([]auditEntry, 0, auditFlushSize)
	for {
		select {
		case e := <-a.queue:
			buf = append(buf, e)
			if len(buf) >= auditFlushSize {
				a.flush(buf)
				buf = buf[:0]
			}
		case <-ticker.C:
			if len(buf) > 0 {
				a.flush(buf)
				buf = buf[:0]
			}
		case <-a.done:
			// drain what is already queued, then a final flush
			for {
				select {
				case e := <-a.queue:
					buf = append(buf, e)
				default:
					if len(buf) > 0 {
						a.flush(buf)
					}
					return
				}
			}
		}
	}
}

func (a *AuditSink) flush(entries []auditEntry) {
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{e.tenantID, e.message, e.level, e.source, e.createdAt})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := a.db.BatchInsert(ctx, "audit_log",
		[]string{"tenant_id", "message", "level", "source", "created_at"},
		rows, db.DefaultBatchConfig())
	if err != nil {
		a.log.Error("audit_flush_failed", "entries", len(entries), "error", err)
	}
}

// Close flushes remaining entries and stops the background writer.
func (a *AuditSink) Close() {
	close(a.done)
	a.wg.Wait()
}
