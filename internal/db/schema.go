package db

import "context"

// All tables are tenant-scoped; the auth gate resolves the tenant before any
// of them are touched. Punishment rows are never hard-deleted: pardons and
// duration edits land in modifications instead.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	api_key_hash  TEXT NOT NULL UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tenant_settings (
	tenant_id  BIGINT NOT NULL REFERENCES tenants(id),
	key        TEXT NOT NULL,
	value      JSONB NOT NULL,
	PRIMARY KEY (tenant_id, key)
);

CREATE TABLE IF NOT EXISTS players (
	tenant_id        BIGINT NOT NULL REFERENCES tenants(id),
	player_id        TEXT NOT NULL,
	online           BOOLEAN NOT NULL DEFAULT FALSE,
	last_connect     TIMESTAMPTZ,
	last_disconnect  TIMESTAMPTZ,
	playtime_ms      BIGINT NOT NULL DEFAULT 0,
	linked_accounts  TEXT[] NOT NULL DEFAULT '{}',
	last_link_update TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tenant_id, player_id)
);

CREATE TABLE IF NOT EXISTS username_history (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL,
	player_id   TEXT NOT NULL,
	username    TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS username_history_player_idx
	ON username_history (tenant_id, player_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS username_history_name_idx
	ON username_history (tenant_id, LOWER(username));

CREATE TABLE IF NOT EXISTS ip_records (
	tenant_id  BIGINT NOT NULL,
	player_id  TEXT NOT NULL,
	address    TEXT NOT NULL,
	country    TEXT,
	asn        BIGINT,
	org        TEXT,
	proxy      BOOLEAN NOT NULL DEFAULT FALSE,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	logins     TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (tenant_id, player_id, address)
);
CREATE INDEX IF NOT EXISTS ip_records_address_idx
	ON ip_records (tenant_id, address);

CREATE TABLE IF NOT EXISTS punishments (
	tenant_id       BIGINT NOT NULL,
	player_id       TEXT NOT NULL,
	id              TEXT NOT NULL,
	issuer_name     TEXT NOT NULL,
	issued          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started         TIMESTAMPTZ,
	type_ordinal    INT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	duration_ms     BIGINT NOT NULL DEFAULT -1,
	expires         TIMESTAMPTZ,
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	alt_blocking    BOOLEAN NOT NULL DEFAULT FALSE,
	linked_ban_id   TEXT,
	acknowledged_at TIMESTAMPTZ,
	exec_failed_at  TIMESTAMPTZ,
	exec_error      TEXT NOT NULL DEFAULT '',
	notes           JSONB NOT NULL DEFAULT '[]',
	tickets         TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (tenant_id, player_id, id)
);
CREATE INDEX IF NOT EXISTS punishments_pending_idx
	ON punishments (tenant_id, player_id) WHERE started IS NULL AND active;
CREATE INDEX IF NOT EXISTS punishments_started_idx
	ON punishments (tenant_id, started);
CREATE INDEX IF NOT EXISTS punishments_linked_idx
	ON punishments (tenant_id, player_id, linked_ban_id) WHERE linked_ban_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS modifications (
	id            BIGSERIAL PRIMARY KEY,
	tenant_id     BIGINT NOT NULL,
	player_id     TEXT NOT NULL,
	punishment_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	actor         TEXT NOT NULL,
	issued        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	effective_duration_ms BIGINT
);
CREATE INDEX IF NOT EXISTS modifications_punishment_idx
	ON modifications (tenant_id, player_id, punishment_id, issued);
CREATE INDEX IF NOT EXISTS modifications_issued_idx
	ON modifications (tenant_id, issued);

CREATE TABLE IF NOT EXISTS notifications (
	id         BIGSERIAL PRIMARY KEY,
	tenant_id  BIGINT NOT NULL,
	player_id  TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS notifications_player_idx
	ON notifications (tenant_id, player_id);

CREATE TABLE IF NOT EXISTS tickets (
	tenant_id     BIGINT NOT NULL,
	id            TEXT NOT NULL,
	player_id     TEXT NOT NULL,
	subject       TEXT NOT NULL,
	body          TEXT NOT NULL DEFAULT '',
	punishment_id TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         BIGSERIAL PRIMARY KEY,
	tenant_id  BIGINT NOT NULL,
	message    TEXT NOT NULL,
	level      TEXT NOT NULL DEFAULT 'info',
	source     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS audit_log_age_idx
	ON audit_log (tenant_id, created_at);
`

func (d *DB) initSchema(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, schema)
	return err
}
