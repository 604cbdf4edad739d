package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"modguard/internal/store"
)

// ArchiveStore is the audit-export slice of the data store.
type ArchiveStore interface {
	TenantIDs(ctx context.Context) ([]int64, error)
	AuditRowsBefore(ctx context.Context, tenantID int64, cutoff time.Time, limit int) ([]store.AuditRow, error)
	DeleteAuditRows(ctx context.Context, ids []int64) error
}

// ArchiveJob ships aged audit rows to object storage and deletes them.
// Rows are only deleted after a successful upload, so a failed cycle
// retries the same batch next time.
type ArchiveJob struct {
	log       *slog.Logger
	store     ArchiveStore
	client    ArchiveClient
	retention time.Duration
	interval  time.Duration
	batchSize int
	stopChan  chan bool
}

func NewArchiveJob(log *slog.Logger, st ArchiveStore, client ArchiveClient, retentionDays int) *ArchiveJob {
	if retentionDays < 1 {
		retentionDays = 30
	}
	return &ArchiveJob{
		log:       log,
		store:     st,
		client:    client,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  6 * time.Hour,
		batchSize: 5000,
		stopChan:  make(chan bool, 1),
	}
}

func (j *ArchiveJob) Start() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	go j.runCycle(context.Background())

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			j.runCycle(ctx)
			cancel()
		case <-j.stopChan:
			j.log.Info("archive_job_stopped")
			return
		}
	}
}

func (j *ArchiveJob) Stop() {
	select {
	case j.stopChan <- true:
	default:
	}
}

func (j *ArchiveJob) runCycle(ctx context.Context) {
	j.log.Info("archive_cycle_started")

	tenants, err := j.store.TenantIDs(ctx)
	if err != nil {
		j.log.Warn("archive_tenants_failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-j.retention)
	var exported int

	for _, tenantID := range tenants {
		for {
			select {
			case <-ctx.Done():
				j.log.Info("archive_cycle_cancelled")
				return
			default:
			}

			rows, err := j.store.AuditRowsBefore(ctx, tenantID, cutoff, j.batchSize)
			if err != nil {
				j.log.Warn("archive_fetch_failed", "tenant_id", tenantID, "error", err)
				break
			}
			if len(rows) == 0 {
				break
			}

			data, err := encodeBatch(rows)
			if err != nil {
				j.log.Warn("archive_encode_failed", "tenant_id", tenantID, "error", err)
				break
			}

			objectKey := fmt.Sprintf("audit/%d/%s/%d.json.gz",
				tenantID,
				rows[0].CreatedAt.UTC().Format("2006-01-02"),
				time.Now().UnixNano(),
			)
			url, err := j.client.UploadArchive(objectKey, data)
			if err != nil {
				j.log.Warn("archive_upload_failed", "tenant_id", tenantID, "key", objectKey, "error", err)
				break
			}

			ids := make([]int64, 0, len(rows))
			for _, r := range rows {
				ids = append(ids, r.ID)
			}
			if err := j.store.DeleteAuditRows(ctx, ids); err != nil {
				// worst case the same rows get re-exported next cycle
				j.log.Warn("archive_delete_failed", "tenant_id", tenantID, "error", err)
				break
			}

			exported += len(rows)
			j.log.Info("archive_batch_exported",
				"tenant_id", tenantID,
				"rows", len(rows),
				"url", url,
			)
		}
	}

	j.log.Info("archive_cycle_completed", "exported", exported)
}

// encodeBatch writes the rows as gzip'd JSON lines.
func encodeBatch(rows []store.AuditRow) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			gz.Close()
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
