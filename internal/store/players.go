package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"modguard/internal/models"
)

var ErrPlayerNotFound = errors.New("player not found")

// UpsertLogin creates the player on first contact and marks them online.
func (s *Store) UpsertLogin(ctx context.Context, tenantID int64, playerID string, at time.Time) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO players (tenant_id, player_id, online, last_connect)
		 VALUES ($1, $2, TRUE, $3)
		 ON CONFLICT (tenant_id, player_id)
		 DO UPDATE SET online = TRUE, last_connect = $3`,
		tenantID, playerID, at,
	)
	if err != nil {
		return fmt.Errorf("upsert login: %w", err)
	}
	return nil
}

// RecordUsername appends to the username history only when the name actually
// changed since the last observation.
func (s *Store) RecordUsername(ctx context.Context, tenantID int64, playerID, username string) error {
	if username == "" {
		return nil
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO username_history (tenant_id, player_id, username)
		 SELECT $1, $2, $3
		 WHERE COALESCE((
			SELECT username FROM username_history
			WHERE tenant_id = $1 AND player_id = $2
			ORDER BY observed_at DESC, id DESC LIMIT 1
		 ), '') <> $3`,
		tenantID, playerID, username,
	)
	return err
}

// TouchIP records an IP sighting. One row per (player, address): a repeat
// sighting appends to the logins array atomically instead of duplicating the
// record. Returns whether the address is genuinely new for this player, which
// is what gates link detection.
func (s *Store) TouchIP(ctx context.Context, tenantID int64, rec models.IPRecord, at time.Time) (bool, error) {
	var isNew bool
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO ip_records (tenant_id, player_id, address, country, asn, org, proxy, first_seen, logins)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ARRAY[$8::timestamptz])
		 ON CONFLICT (tenant_id, player_id, address)
		 DO UPDATE SET
			logins  = array_append(ip_records.logins, $8::timestamptz),
			proxy   = ip_records.proxy OR EXCLUDED.proxy,
			country = COALESCE(EXCLUDED.country, ip_records.country),
			asn     = COALESCE(EXCLUDED.asn, ip_records.asn),
			org     = COALESCE(EXCLUDED.org, ip_records.org)
		 RETURNING cardinality(logins) = 1`,
		tenantID, rec.PlayerID, rec.Address, rec.Country, rec.ASN, rec.Org, rec.Proxy, at,
	).Scan(&isNew)
	if err != nil {
		return false, fmt.Errorf("touch ip: %w", err)
	}
	return isNew, nil
}

// Disconnect flips the player offline and folds the elapsed session into
// accumulated playtime.
func (s *Store) Disconnect(ctx context.Context, tenantID int64, playerID string, at time.Time) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE players SET
			online = FALSE,
			last_disconnect = $3,
			playtime_ms = playtime_ms + CASE
				WHEN online AND last_connect IS NOT NULL
				THEN GREATEST(0, (EXTRACT(EPOCH FROM ($3::timestamptz - last_connect)) * 1000)::bigint)
				ELSE 0
			END
		 WHERE tenant_id = $1 AND player_id = $2`,
		tenantID, playerID, at,
	)
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// SetOnlinePlayers bulk-reconciles the tenant's online flags against the
// game server's report. Only rows whose flag changes are touched.
func (s *Store) SetOnlinePlayers(ctx context.Context, tenantID int64, onlineIDs []string) error {
	if onlineIDs == nil {
		onlineIDs = []string{}
	}
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE players SET online = (player_id = ANY($2))
		 WHERE tenant_id = $1 AND online <> (player_id = ANY($2))`,
		tenantID, onlineIDs,
	)
	if err != nil {
		return fmt.Errorf("set online players: %w", err)
	}
	return nil
}

func (s *Store) Player(ctx context.Context, tenantID int64, playerID string) (models.Player, error) {
	var p models.Player
	err := s.db.Pool.QueryRow(ctx,
		`SELECT player_id, online, last_connect, last_disconnect, playtime_ms,
		        linked_accounts, last_link_update, created_at
		 FROM players WHERE tenant_id = $1 AND player_id = $2`,
		tenantID, playerID,
	).Scan(&p.PlayerID, &p.Online, &p.LastConnect, &p.LastDisconnect, &p.PlaytimeMS,
		&p.LinkedAccounts, &p.LastLinkUpdate, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Player{}, ErrPlayerNotFound
	}
	if err != nil {
		return models.Player{}, err
	}
	return p, nil
}

// PlayerIDByUsername resolves the most recent holder of a username.
func (s *Store) PlayerIDByUsername(ctx context.Context, tenantID int64, username string) (string, error) {
	var id string
	err := s.db.Pool.QueryRow(ctx,
		`SELECT player_id FROM username_history
		 WHERE tenant_id = $1 AND LOWER(username) = LOWER($2)
		 ORDER BY observed_at DESC, id DESC LIMIT 1`,
		tenantID, username,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPlayerNotFound
	}
	return id, err
}

func (s *Store) UsernameHistory(ctx context.Context, tenantID int64, playerID string) ([]models.UsernameEntry, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT username, observed_at FROM username_history
		 WHERE tenant_id = $1 AND player_id = $2
		 ORDER BY observed_at DESC, id DESC LIMIT 500`,
		tenantID, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.UsernameEntry, 0, 8)
	for rows.Next() {
		var e models.UsernameEntry
		if err := rows.Scan(&e.Username, &e.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestUsername returns the player's current display name, or "" when no
// username was ever observed.
func (s *Store) LatestUsername(ctx context.Context, tenantID int64, playerID string) (string, error) {
	var name string
	err := s.db.Pool.QueryRow(ctx,
		`SELECT username FROM username_history
		 WHERE tenant_id = $1 AND player_id = $2
		 ORDER BY observed_at DESC, id DESC LIMIT 1`,
		tenantID, playerID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// AddLink appends each account to the other's linked list. Idempotent: the
// array-position guard makes a repeated link a no-op, so concurrent logins
// from both sides at worst repeat a harmless write.
func (s *Store) AddLink(ctx context.Context, tenantID int64, playerA, playerB string) (bool, error) {
	linked := false
	for _, pair := range [][2]string{{playerA, playerB}, {playerB, playerA}} {
		tag, err := s.db.Pool.Exec(ctx,
			`UPDATE players SET
				linked_accounts = array_append(linked_accounts, $3),
				last_link_update = NOW()
			 WHERE tenant_id = $1 AND player_id = $2
			   AND array_position(linked_accounts, $3) IS NULL`,
			tenantID, pair[0], pair[1],
		)
		if err != nil {
			return linked, fmt.Errorf("add link: %w", err)
		}
		if tag.RowsAffected() > 0 {
			linked = true
		}
	}
	return linked, nil
}

func (s *Store) LinkedAccounts(ctx context.Context, tenantID int64, playerID string) ([]string, error) {
	var linked []string
	err := s.db.Pool.QueryRow(ctx,
		`SELECT linked_accounts FROM players WHERE tenant_id = $1 AND player_id = $2`,
		tenantID, playerID,
	).Scan(&linked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	return linked, err
}

// IPRecordsFor loads the player's records for the given addresses.
func (s *Store) IPRecordsFor(ctx context.Context, tenantID int64, playerID string, addrs []string) (map[string]models.IPRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT player_id, address, country, asn, org, proxy, first_seen, logins
		 FROM ip_records
		 WHERE tenant_id = $1 AND player_id = $2 AND address = ANY($3)`,
		tenantID, playerID, addrs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.IPRecord, len(addrs))
	for rows.Next() {
		var r models.IPRecord
		if err := rows.Scan(&r.PlayerID, &r.Address, &r.Country, &r.ASN, &r.Org, &r.Proxy, &r.FirstSeen, &r.Logins); err != nil {
			return nil, err
		}
		out[r.Address] = r
	}
	return out, rows.Err()
}

// RecordsForAddresses finds every other player's record on the given
// addresses — the candidate set for link detection.
func (s *Store) RecordsForAddresses(ctx context.Context, tenantID int64, addrs []string, excludePlayerID string) ([]models.IPRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT player_id, address, country, asn, org, proxy, first_seen, logins
		 FROM ip_records
		 WHERE tenant_id = $1 AND address = ANY($2) AND player_id <> $3
		 LIMIT 500`,
		tenantID, addrs, excludePlayerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.IPRecord, 0, 16)
	for rows.Next() {
		var r models.IPRecord
		if err := rows.Scan(&r.PlayerID, &r.Address, &r.Country, &r.ASN, &r.Org, &r.Proxy, &r.FirstSeen, &r.Logins); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) IPRecords(ctx context.Context, tenantID int64, playerID string) ([]models.IPRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT player_id, address, country, asn, org, proxy, first_seen, logins
		 FROM ip_records
		 WHERE tenant_id = $1 AND player_id = $2
		 ORDER BY first_seen DESC`,
		tenantID, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.IPRecord, 0, 4)
	for rows.Next() {
		var r models.IPRecord
		if err := rows.Scan(&r.PlayerID, &r.Address, &r.Country, &r.ASN, &r.Org, &r.Proxy, &r.FirstSeen, &r.Logins); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentlyActivePlayers returns players seen since the cutoff, for the
// periodic link sweep. Paged by offset like any other batch job.
func (s *Store) RecentlyActivePlayers(ctx context.Context, tenantID int64, since time.Time, limit, offset int) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT player_id FROM players
		 WHERE tenant_id = $1 AND last_connect >= $2
		 ORDER BY last_connect DESC, player_id ASC
		 LIMIT $3 OFFSET $4`,
		tenantID, since, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// TenantIDs lists all tenants, for background jobs that walk every tenant.
func (s *Store) TenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddressesForPlayer lists every address the player has records for, used by
// the link sweep to re-run detection over the full address set.
func (s *Store) AddressesForPlayer(ctx context.Context, tenantID int64, playerID string) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT address FROM ip_records WHERE tenant_id = $1 AND player_id = $2`,
		tenantID, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
