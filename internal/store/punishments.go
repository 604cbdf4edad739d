package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"modguard/internal/models"
	"modguard/internal/punish"
	"modguard/internal/security"
)

var ErrPunishmentNotFound = errors.New("punishment not found")

// CreatePunishment inserts a new punishment. When no ID is supplied one is
// generated; the insert is retried with a fresh ID on the rare collision
// rather than surfacing a conflict to the caller.
func (s *Store) CreatePunishment(ctx context.Context, tenantID int64, p models.Punishment) (models.Punishment, error) {
	notes := p.Notes
	if notes == nil {
		notes = []models.Note{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return models.Punishment{}, err
	}

	tickets := p.Tickets
	if tickets == nil {
		tickets = []string{}
	}

	supplied := p.ID != ""
	for attempt := 0; attempt < 5; attempt++ {
		if !supplied {
			p.ID = security.NewShortID(security.PunishmentIDLength)
		}

		_, err := s.db.Pool.Exec(ctx,
			`INSERT INTO punishments
				(tenant_id, player_id, id, issuer_name, issued, started, type_ordinal,
				 reason, duration_ms, expires, active, alt_blocking, linked_ban_id, notes, tickets)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)`,
			tenantID, p.PlayerID, p.ID, p.IssuerName, p.Issued, p.Started, p.Type,
			p.Reason, p.DurationMS, p.Expires, p.Active, p.AltBlocking, p.LinkedBanID, notesJSON, tickets,
		)
		if err == nil {
			return p, nil
		}

		var pgErr *pgconn.PgError
		if !supplied && errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue // id collision, draw again
		}
		return models.Punishment{}, fmt.Errorf("create punishment: %w", err)
	}

	return models.Punishment{}, errors.New("create punishment: exhausted id retries")
}

const punishmentColumns = `player_id, id, issuer_name, issued, started, type_ordinal,
	reason, duration_ms, expires, active, alt_blocking,
	COALESCE(linked_ban_id, ''), acknowledged_at, exec_failed_at, exec_error, notes, tickets`

func scanPunishment(row pgx.Row) (models.Punishment, error) {
	var p models.Punishment
	var notesJSON []byte
	err := row.Scan(&p.PlayerID, &p.ID, &p.IssuerName, &p.Issued, &p.Started, &p.Type,
		&p.Reason, &p.DurationMS, &p.Expires, &p.Active, &p.AltBlocking,
		&p.LinkedBanID, &p.AcknowledgedAt, &p.ExecFailedAt, &p.ExecError, &notesJSON, &p.Tickets)
	if err != nil {
		return models.Punishment{}, err
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &p.Notes); err != nil {
			return models.Punishment{}, err
		}
	}
	return p, nil
}

func (s *Store) collectPunishments(ctx context.Context, tenantID int64, query string, args ...any) ([]models.Punishment, error) {
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Punishment, 0, 8)
	for rows.Next() {
		p, err := scanPunishment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s.attachModifications(ctx, tenantID, out)
}

// attachModifications loads the modification logs for a punishment batch in
// one query. The resolver re-sorts by issued time on every fold, so result
// order here is a convenience, not a correctness requirement.
func (s *Store) attachModifications(ctx context.Context, tenantID int64, puns []models.Punishment) ([]models.Punishment, error) {
	if len(puns) == 0 {
		return puns, nil
	}

	ids := make([]string, 0, len(puns))
	for _, p := range puns {
		ids = append(ids, p.ID)
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, player_id, punishment_id, kind, actor, issued, effective_duration_ms
		 FROM modifications
		 WHERE tenant_id = $1 AND punishment_id = ANY($2)
		 ORDER BY issued ASC, id ASC`,
		tenantID, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[string][]models.Modification)
	for rows.Next() {
		var m models.Modification
		var playerID string
		if err := rows.Scan(&m.ID, &playerID, &m.PunishmentID, &m.Kind, &m.Actor, &m.Issued, &m.EffectiveDurationMS); err != nil {
			return nil, err
		}
		byKey[playerID+"/"+m.PunishmentID] = append(byKey[playerID+"/"+m.PunishmentID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range puns {
		puns[i].Modifications = byKey[puns[i].PlayerID+"/"+puns[i].ID]
	}
	return puns, nil
}

func (s *Store) Punishment(ctx context.Context, tenantID int64, playerID, punishmentID string) (models.Punishment, error) {
	puns, err := s.collectPunishments(ctx, tenantID,
		`SELECT `+punishmentColumns+` FROM punishments
		 WHERE tenant_id = $1 AND player_id = $2 AND id = $3`,
		tenantID, playerID, punishmentID,
	)
	if err != nil {
		return models.Punishment{}, err
	}
	if len(puns) == 0 {
		return models.Punishment{}, ErrPunishmentNotFound
	}
	return puns[0], nil
}

func (s *Store) PunishmentsForPlayer(ctx context.Context, tenantID int64, playerID string) ([]models.Punishment, error) {
	return s.collectPunishments(ctx, tenantID,
		`SELECT `+punishmentColumns+` FROM punishments
		 WHERE tenant_id = $1 AND player_id = $2
		 ORDER BY issued DESC`,
		tenantID, playerID,
	)
}

// UnstartedForPlayers loads the not-yet-enforced punishments for a set of
// online players; the stacking selector narrows them per player.
func (s *Store) UnstartedForPlayers(ctx context.Context, tenantID int64, playerIDs []string) ([]models.Punishment, error) {
	return s.collectPunishments(ctx, tenantID,
		`SELECT `+punishmentColumns+` FROM punishments
		 WHERE tenant_id = $1 AND player_id = ANY($2) AND started IS NULL
		 ORDER BY issued ASC`,
		tenantID, playerIDs,
	)
}

// StartedSince returns punishments whose enforcement began at or after the
// caller's watermark.
func (s *Store) StartedSince(ctx context.Context, tenantID int64, playerIDs []string, since time.Time) ([]models.Punishment, error) {
	return s.collectPunishments(ctx, tenantID,
		`SELECT `+punishmentColumns+` FROM punishments
		 WHERE tenant_id = $1 AND player_id = ANY($2) AND started IS NOT NULL AND started >= $3
		 ORDER BY started ASC`,
		tenantID, playerIDs, since,
	)
}

// modifiedSinceQuery correlates on the full (player_id, id) pair: punishment
// ids are only unique per player, so matching on id alone would drag in
// another player's punishment that happens to share one.
const modifiedSinceQuery = `SELECT DISTINCT ` + punishmentColumns + ` FROM punishments
	 WHERE tenant_id = $1 AND player_id = ANY($2) AND (player_id, id) IN (
		SELECT player_id, punishment_id FROM modifications
		WHERE tenant_id = $1 AND player_id = ANY($2) AND issued >= $3
	 )`

// ModifiedSince returns punishments that gained a modification at or after
// the watermark, so the client can re-evaluate them.
func (s *Store) ModifiedSince(ctx context.Context, tenantID int64, playerIDs []string, since time.Time) ([]models.Punishment, error) {
	return s.collectPunishments(ctx, tenantID, modifiedSinceQuery, tenantID, playerIDs, since)
}

// AcknowledgeSuccess records confirmed enforcement. started is set at most
// once: the first acknowledge wins and fixes expires from the execution
// instant via punish.Acknowledge; repeats only refresh acknowledged_at.
func (s *Store) AcknowledgeSuccess(ctx context.Context, tenantID int64, playerID, punishmentID string, executedAt time.Time) error {
	p, err := s.Punishment(ctx, tenantID, playerID, punishmentID)
	if err != nil {
		return err
	}

	if p.Started == nil {
		next := punish.Acknowledge(p, executedAt)
		tag, err := s.db.Pool.Exec(ctx,
			`UPDATE punishments SET
				started = $4,
				acknowledged_at = $4,
				exec_error = '',
				exec_failed_at = NULL,
				expires = $5
			 WHERE tenant_id = $1 AND player_id = $2 AND id = $3 AND started IS NULL`,
			tenantID, playerID, punishmentID, *next.Started, next.Expires,
		)
		if err != nil {
			return fmt.Errorf("acknowledge: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		// lost the race to a concurrent acknowledge; record this one below
	}

	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE punishments SET acknowledged_at = $4
		 WHERE tenant_id = $1 AND player_id = $2 AND id = $3`,
		tenantID, playerID, punishmentID, executedAt,
	)
	if err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPunishmentNotFound
	}
	return nil
}

// AcknowledgeFailure records a failed local execution without touching
// started, so the punishment stays in the unstarted pool and is re-selected
// on the next sync.
func (s *Store) AcknowledgeFailure(ctx context.Context, tenantID int64, playerID, punishmentID, errMsg string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE punishments SET exec_failed_at = NOW(), exec_error = $4
		 WHERE tenant_id = $1 AND player_id = $2 AND id = $3`,
		tenantID, playerID, punishmentID, errMsg,
	)
	if err != nil {
		return fmt.Errorf("acknowledge failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPunishmentNotFound
	}
	return nil
}

// AddModification appends to the punishment's modification log and refreshes
// the denormalized active/expires columns from the resolver, so aggregate
// SQL filters stay in step with the fold.
func (s *Store) AddModification(ctx context.Context, tenantID int64, playerID, punishmentID string, mod models.Modification) error {
	if _, err := s.Punishment(ctx, tenantID, playerID, punishmentID); err != nil {
		return err
	}

	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO modifications (tenant_id, player_id, punishment_id, kind, actor, issued, effective_duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tenantID, playerID, punishmentID, mod.Kind, mod.Actor, mod.Issued, mod.EffectiveDurationMS,
	)
	if err != nil {
		return fmt.Errorf("add modification: %w", err)
	}

	p, err := s.Punishment(ctx, tenantID, playerID, punishmentID)
	if err != nil {
		return err
	}
	v := punish.Resolve(p, time.Now())
	_, err = s.db.Pool.Exec(ctx,
		`UPDATE punishments SET active = $4, expires = $5
		 WHERE tenant_id = $1 AND player_id = $2 AND id = $3`,
		tenantID, playerID, punishmentID, v.Active, v.Expiry,
	)
	return err
}

func (s *Store) AddNote(ctx context.Context, tenantID int64, playerID, punishmentID string, note models.Note) error {
	noteJSON, err := json.Marshal([]models.Note{note})
	if err != nil {
		return err
	}

	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE punishments SET notes = notes || $4::jsonb
		 WHERE tenant_id = $1 AND player_id = $2 AND id = $3`,
		tenantID, playerID, punishmentID, noteJSON,
	)
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPunishmentNotFound
	}
	return nil
}

func (s *Store) AttachTicket(ctx context.Context, tenantID int64, playerID, punishmentID, ticketID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE punishments SET tickets = array_append(tickets, $4)
		 WHERE tenant_id = $1 AND player_id = $2 AND id = $3
		   AND array_position(tickets, $4) IS NULL`,
		tenantID, playerID, punishmentID, ticketID,
	)
	if err != nil {
		return fmt.Errorf("attach ticket: %w", err)
	}
	return nil
}

// HasLinkedBan reports whether the player already carries a derived ban for
// the given source punishment — the propagation idempotency check.
func (s *Store) HasLinkedBan(ctx context.Context, tenantID int64, playerID, sourcePunishmentID string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM punishments
			WHERE tenant_id = $1 AND player_id = $2 AND linked_ban_id = $3
		 )`,
		tenantID, playerID, sourcePunishmentID,
	).Scan(&exists)
	return exists, err
}

// TenantStats are the aggregate counters returned on every sync response.
type TenantStats struct {
	TotalPlayers  int64 `json:"total_players"`
	OnlinePlayers int64 `json:"online_players"`
	ActiveBans    int64 `json:"active_bans"`
	ActiveMutes   int64 `json:"active_mutes"`
}

// Stats computes tenant aggregates in SQL. Kind membership is decided by the
// caller (classifier over tenant settings) and passed as ordinal sets.
func (s *Store) Stats(ctx context.Context, tenantID int64, banOrdinals, muteOrdinals []int32) (TenantStats, error) {
	var st TenantStats
	err := s.db.Pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM players WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM players WHERE tenant_id = $1 AND online),
			(SELECT COUNT(*) FROM punishments
				WHERE tenant_id = $1 AND started IS NOT NULL AND active
				  AND (expires IS NULL OR expires > NOW())
				  AND type_ordinal = ANY($2)),
			(SELECT COUNT(*) FROM punishments
				WHERE tenant_id = $1 AND started IS NOT NULL AND active
				  AND (expires IS NULL OR expires > NOW())
				  AND type_ordinal = ANY($3))`,
		tenantID, banOrdinals, muteOrdinals,
	).Scan(&st.TotalPlayers, &st.OnlinePlayers, &st.ActiveBans, &st.ActiveMutes)
	if err != nil {
		return TenantStats{}, fmt.Errorf("tenant stats: %w", err)
	}
	return st, nil
}
