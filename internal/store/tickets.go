package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"modguard/internal/models"
	"modguard/internal/security"
)

// CreateTicket inserts a minimal ticket record and, when the ticket
// references a punishment, links it into that punishment's ticket list.
// Full ticket workflow lives outside this service; the plugin only opens
// tickets.
func (s *Store) CreateTicket(ctx context.Context, tenantID int64, t models.Ticket) (models.Ticket, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	for attempt := 0; attempt < 5; attempt++ {
		if t.ID == "" {
			t.ID = security.NewShortID(10)
		}

		_, err := s.db.Pool.Exec(ctx,
			`INSERT INTO tickets (tenant_id, id, player_id, subject, body, punishment_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
			tenantID, t.ID, t.PlayerID, t.Subject, t.Body, t.PunishmentID, t.CreatedAt,
		)
		if err == nil {
			if t.PunishmentID != "" {
				if err := s.AttachTicket(ctx, tenantID, t.PlayerID, t.PunishmentID, t.ID); err != nil {
					s.log.Warn("ticket_attach_failed", "ticket_id", t.ID, "punishment_id", t.PunishmentID, "error", err)
				}
			}
			return t, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			t.ID = ""
			continue
		}
		return models.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	return models.Ticket{}, errors.New("create ticket: exhausted id retries")
}
