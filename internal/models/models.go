package models

import "time"

// Tenant is the verified context the auth gate attaches to every request.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Player struct {
	PlayerID       string     `json:"player_id"`
	Online         bool       `json:"online"`
	LastConnect    *time.Time `json:"last_connect,omitempty"`
	LastDisconnect *time.Time `json:"last_disconnect,omitempty"`
	PlaytimeMS     int64      `json:"playtime_ms"`
	LinkedAccounts []string   `json:"linked_accounts"`
	LastLinkUpdate *time.Time `json:"last_link_update,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type UsernameEntry struct {
	Username   string    `json:"username"`
	ObservedAt time.Time `json:"observed_at"`
}

// IPRecord is unique per (player, address); new sightings append to Logins.
type IPRecord struct {
	PlayerID  string      `json:"player_id"`
	Address   string      `json:"address"`
	Country   *string     `json:"country,omitempty"`
	ASN       *int64      `json:"asn,omitempty"`
	Org       *string     `json:"org,omitempty"`
	Proxy     bool        `json:"proxy"`
	FirstSeen time.Time   `json:"first_seen"`
	Logins    []time.Time `json:"logins"`
}

// LastLogin returns the most recent login instant on this address.
func (r IPRecord) LastLogin() time.Time {
	if len(r.Logins) == 0 {
		return r.FirstSeen
	}
	return r.Logins[len(r.Logins)-1]
}

// Fixed system punishment type ordinals. Ordinals >= 6 are tenant-defined.
const (
	OrdinalKick        = 0
	OrdinalManualMute  = 1
	OrdinalManualBan   = 2
	OrdinalSecurityBan = 3
	OrdinalLinkedBan   = 4
	OrdinalBlacklist   = 5
	FirstCustomOrdinal = 6
)

// PermanentDuration marks a punishment that never expires.
const PermanentDuration int64 = -1

type Punishment struct {
	ID         string     `json:"id"`
	PlayerID   string     `json:"player_id"`
	IssuerName string     `json:"issuer_name"`
	Issued     time.Time  `json:"issued"`
	Started    *time.Time `json:"started,omitempty"`
	Type       int        `json:"type"`

	Reason      string     `json:"reason,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`
	Active      bool       `json:"active"`
	AltBlocking bool       `json:"alt_blocking,omitempty"`

	// LinkedBanID references the source punishment when this entry was
	// synthesized by linked-ban propagation.
	LinkedBanID string `json:"linked_ban_id,omitempty"`

	// execution-confirmation metadata reported by the game server
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ExecFailedAt   *time.Time `json:"exec_failed_at,omitempty"`
	ExecError      string     `json:"exec_error,omitempty"`

	Notes         []Note         `json:"notes,omitempty"`
	Modifications []Modification `json:"modifications,omitempty"`
	Tickets       []string       `json:"tickets,omitempty"`
}

// Permanent reports whether the punishment carries no expiry of its own.
func (p Punishment) Permanent() bool {
	return p.Expires == nil && (p.DurationMS == PermanentDuration || p.DurationMS == 0)
}

// Modification kinds. Modifications are append-only and folded in ascending
// issued order; a later entry overrides earlier ones for overlapping concerns.
const (
	ModManualPardon         = "MANUAL_PARDON"
	ModAppealAccept         = "APPEAL_ACCEPT"
	ModManualDurationChange = "MANUAL_DURATION_CHANGE"
)

type Modification struct {
	ID           int64     `json:"id"`
	PunishmentID string    `json:"punishment_id"`
	Kind         string    `json:"kind"`
	Actor        string    `json:"actor"`
	Issued       time.Time `json:"issued"`

	// EffectiveDurationMS applies to MANUAL_DURATION_CHANGE only;
	// 0 or -1 mean "make permanent".
	EffectiveDurationMS *int64 `json:"effective_duration_ms,omitempty"`
}

type Note struct {
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	Written time.Time `json:"written"`
}

// Notification is a one-shot message drained on the player's next contact.
type Notification struct {
	ID        int64     `json:"id"`
	PlayerID  string    `json:"player_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Ticket struct {
	ID           string    `json:"id"`
	PlayerID     string    `json:"player_id"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body,omitempty"`
	PunishmentID string    `json:"punishment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PunishmentTypeDef is a tenant-configured custom punishment type
// (ordinal >= 6). Durations escalate by offense count; each tier carries
// per-severity durations in milliseconds and declares its enforcement kind.
type PunishmentTypeDef struct {
	Name      string         `json:"name"`
	Ordinal   int            `json:"ordinal"`
	Points    int            `json:"points,omitempty"`
	Durations []DurationTier `json:"durations,omitempty"`
}

type DurationTier struct {
	Kind   string `json:"type,omitempty"` // "BAN", "MUTE" or "KICK"
	LowMS  int64  `json:"low,omitempty"`
	MedMS  int64  `json:"medium,omitempty"`
	HighMS int64  `json:"high,omitempty"`
}
