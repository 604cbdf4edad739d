package storage

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"modguard/internal/store"
)

type fakeArchiveStore struct {
	rows    []store.AuditRow
	deleted []int64
}

func (f *fakeArchiveStore) TenantIDs(context.Context) ([]int64, error) {
	return []int64{1}, nil
}

func (f *fakeArchiveStore) AuditRowsBefore(_ context.Context, tenantID int64, cutoff time.Time, limit int) ([]store.AuditRow, error) {
	var out []store.AuditRow
	for _, r := range f.rows {
		if r.TenantID == tenantID && r.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeArchiveStore) DeleteAuditRows(_ context.Context, ids []int64) error {
	f.deleted = append(f.deleted, ids...)
	kept := f.rows[:0]
	for _, r := range f.rows {
		drop := false
		for _, id := range ids {
			if r.ID == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestArchiveCycleExportsAndDeletes(t *testing.T) {
	old := time.Now().Add(-60 * 24 * time.Hour)
	fresh := time.Now()

	fs := &fakeArchiveStore{rows: []store.AuditRow{
		{ID: 1, TenantID: 1, Message: "Linked accounts a and b", Level: "INFO", Source: "link-detector", CreatedAt: old},
		{ID: 2, TenantID: 1, Message: "Issued linked ban", Level: "WARN", Source: "linked-ban", CreatedAt: old.Add(time.Minute)},
		{ID: 3, TenantID: 1, Message: "recent entry stays", Level: "INFO", Source: "punishments", CreatedAt: fresh},
	}}

	job := NewArchiveJob(discardLogger(), fs, NewArchiveSimulator("", ""), 30)
	job.runCycle(context.Background())

	if len(fs.deleted) != 2 {
		t.Fatalf("deleted %v, want the 2 aged rows", fs.deleted)
	}
	if len(fs.rows) != 1 || fs.rows[0].ID != 3 {
		t.Fatalf("remaining rows = %+v, want only the recent one", fs.rows)
	}
}

func TestEncodeBatchRoundTrips(t *testing.T) {
	rows := []store.AuditRow{
		{ID: 10, TenantID: 2, Message: "first", Level: "INFO", Source: "punishments", CreatedAt: time.Now().UTC()},
		{ID: 11, TenantID: 2, Message: "second", Level: "WARN", Source: "acknowledge", CreatedAt: time.Now().UTC()},
	}

	data, err := encodeBatch(rows)
	if err != nil {
		t.Fatalf("encodeBatch: %v", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	defer gz.Close()

	var decoded []store.AuditRow
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var r store.AuditRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line decode: %v", err)
		}
		decoded = append(decoded, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(decoded) != 2 || decoded[0].ID != 10 || decoded[1].Message != "second" {
		t.Fatalf("decoded = %+v", decoded)
	}
}
