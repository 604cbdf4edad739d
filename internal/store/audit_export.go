package store

import (
	"context"
	"time"
)

// AuditRow is the export shape used by the archive job.
type AuditRow struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRowsBefore pages aged audit entries for one tenant, oldest first.
func (s *Store) AuditRowsBefore(ctx context.Context, tenantID int64, cutoff time.Time, limit int) ([]AuditRow, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, tenant_id, message, level, source, created_at
		 FROM audit_log
		 WHERE tenant_id = $1 AND created_at < $2
		 ORDER BY created_at ASC, id ASC
		 LIMIT $3`,
		tenantID, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AuditRow, 0, limit)
	for rows.Next() {
		var r AuditRow
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Message, &r.Level, &r.Source, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteAuditRows removes rows that were successfully archived.
func (s *Store) DeleteAuditRows(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM audit_log WHERE id = ANY($1)`, ids)
	return err
}
