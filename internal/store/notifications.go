package store

import (
	"context"
	"fmt"

	"modguard/internal/models"
)

// QueueNotification stores a one-shot message for delivery on the player's
// next login or sync.
func (s *Store) QueueNotification(ctx context.Context, tenantID int64, playerID, message string) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO notifications (tenant_id, player_id, message) VALUES ($1, $2, $3)`,
		tenantID, playerID, message,
	)
	if err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	return nil
}

// DrainNotifications removes and returns the pending notifications for a set
// of players, grouped by player. Delete-returning keeps drain atomic: a
// message is delivered to exactly one response.
func (s *Store) DrainNotifications(ctx context.Context, tenantID int64, playerIDs []string) (map[string][]models.Notification, error) {
	rows, err := s.db.Pool.Query(ctx,
		`DELETE FROM notifications
		 WHERE tenant_id = $1 AND player_id = ANY($2)
		 RETURNING id, player_id, message, created_at`,
		tenantID, playerIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("drain notifications: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Notification)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.PlayerID, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		out[n.PlayerID] = append(out[n.PlayerID], n)
	}
	return out, rows.Err()
}
