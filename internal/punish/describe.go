package punish

import (
	"fmt"
	"time"

	"modguard/internal/models"
)

// Described is the client-facing shape of a punishment: the raw record plus
// the resolved kind, display name and computed expiry.
type Described struct {
	ID          string     `json:"id"`
	PlayerID    string     `json:"player_id"`
	Type        int        `json:"type"`
	Kind        string     `json:"kind"`
	TypeName    string     `json:"type_name"`
	Reason      string     `json:"reason,omitempty"`
	IssuerName  string     `json:"issuer_name"`
	Issued      time.Time  `json:"issued"`
	Started     *time.Time `json:"started,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`
	Permanent   bool       `json:"permanent"`
	AltBlocking bool       `json:"alt_blocking,omitempty"`
	Description string     `json:"description"`
}

// Describe builds the human-facing view of a punishment using the tenant's
// configured type names and the resolver's computed expiry.
func Describe(p models.Punishment, types []models.PunishmentTypeDef, now time.Time) Described {
	v := Resolve(p, now)
	name := TypeName(p.Type, types)

	desc := name
	if p.Reason != "" {
		desc = fmt.Sprintf("%s: %s", name, p.Reason)
	}
	if v.Expiry != nil {
		desc = fmt.Sprintf("%s (until %s)", desc, v.Expiry.UTC().Format("2006-01-02 15:04 MST"))
	} else if Classify(p.Type, types) != Kick {
		desc = fmt.Sprintf("%s (permanent)", desc)
	}

	return Described{
		ID:          p.ID,
		PlayerID:    p.PlayerID,
		Type:        p.Type,
		Kind:        Classify(p.Type, types).String(),
		TypeName:    name,
		Reason:      p.Reason,
		IssuerName:  p.IssuerName,
		Issued:      p.Issued,
		Started:     p.Started,
		Expires:     v.Expiry,
		Permanent:   v.Expiry == nil,
		AltBlocking: p.AltBlocking,
		Description: desc,
	}
}

// DescribeAll maps Describe over a punishment list.
func DescribeAll(puns []models.Punishment, types []models.PunishmentTypeDef, now time.Time) []Described {
	out := make([]Described, 0, len(puns))
	for _, p := range puns {
		out = append(out, Describe(p, types, now))
	}
	return out
}
