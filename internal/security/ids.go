package security

import (
	"crypto/rand"
	"errors"

	"github.com/google/uuid"
)

// Punishment and ticket identifiers are short, player-scoped codes. They are
// generated fresh per insert; the store retries locally on the rare
// collision instead of surfacing a conflict.
const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const PunishmentIDLength = 8

func NewShortID(length int) string {
	if length < 1 {
		length = PunishmentIDLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; there is no
		// reasonable fallback that keeps IDs unpredictable
		panic(err)
	}

	for i := range buf {
		buf[i] = idAlphabet[int(buf[i])%len(idAlphabet)]
	}
	return string(buf)
}

// ParsePlayerID validates a game-client player identifier. Player IDs are
// UUIDs assigned by the game platform; anything else is rejected at the edge
// before queries run.
func ParsePlayerID(s string) (string, error) {
	if s == "" {
		return "", errors.New("empty player id")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", errors.New("player id must be a uuid")
	}
	return id.String(), nil
}
