package punish

import (
	"strings"

	"modguard/internal/models"
)

// Kind is the coarse enforcement class of a punishment type.
type Kind int

const (
	Ban Kind = iota
	Mute
	Kick
)

func (k Kind) String() string {
	switch k {
	case Mute:
		return "MUTE"
	case Kick:
		return "KICK"
	default:
		return "BAN"
	}
}

// Classify resolves a numeric punishment-type ordinal to a Kind. System
// ordinals 0-5 are fixed; custom ordinals consult the tenant's type list.
// The function is total: every ordinal resolves to exactly one kind, so
// downstream branching never needs an error path.
func Classify(ordinal int, types []models.PunishmentTypeDef) Kind {
	switch ordinal {
	case models.OrdinalKick:
		return Kick
	case models.OrdinalManualMute:
		return Mute
	case models.OrdinalManualBan, models.OrdinalSecurityBan, models.OrdinalLinkedBan, models.OrdinalBlacklist:
		return Ban
	}

	for _, def := range types {
		if def.Ordinal != ordinal {
			continue
		}
		if len(def.Durations) > 0 {
			if k, ok := kindFromString(def.Durations[0].Kind); ok {
				return k
			}
		}
		return kindFromName(def.Name)
	}

	return Ban
}

func kindFromString(s string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BAN":
		return Ban, true
	case "MUTE":
		return Mute, true
	case "KICK":
		return Kick, true
	}
	return Ban, false
}

// kindFromName is the fallback heuristic for custom types that carry no
// duration table: substring match on the configured display name.
func kindFromName(name string) Kind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "kick"):
		return Kick
	case strings.Contains(n, "mute"):
		return Mute
	case strings.Contains(n, "ban"):
		return Ban
	}
	return Ban
}

// TypeName returns the display name for an ordinal, for player-facing
// descriptions.
func TypeName(ordinal int, types []models.PunishmentTypeDef) string {
	switch ordinal {
	case models.OrdinalKick:
		return "Kick"
	case models.OrdinalManualMute:
		return "Mute"
	case models.OrdinalManualBan:
		return "Ban"
	case models.OrdinalSecurityBan:
		return "Security Ban"
	case models.OrdinalLinkedBan:
		return "Linked Ban"
	case models.OrdinalBlacklist:
		return "Blacklist"
	}
	for _, def := range types {
		if def.Ordinal == ordinal {
			return def.Name
		}
	}
	return "Ban"
}

// ResolveOrdinal maps a punishment-type string from a create request to an
// ordinal. Accepts the fixed system names and tenant-configured custom type
// names (case-insensitive). Returns false for unrecognized types so the
// caller can reject before any write.
func ResolveOrdinal(typeName string, types []models.PunishmentTypeDef) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(typeName)) {
	case "kick":
		return models.OrdinalKick, true
	case "mute", "manual_mute":
		return models.OrdinalManualMute, true
	case "ban", "manual_ban":
		return models.OrdinalManualBan, true
	case "security_ban":
		return models.OrdinalSecurityBan, true
	case "linked_ban":
		return models.OrdinalLinkedBan, true
	case "blacklist":
		return models.OrdinalBlacklist, true
	}
	for _, def := range types {
		if strings.EqualFold(def.Name, strings.TrimSpace(typeName)) {
			return def.Ordinal, true
		}
	}
	return 0, false
}
