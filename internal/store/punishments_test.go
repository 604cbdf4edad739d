package store

import (
	"strings"
	"testing"
)

// Punishment ids are only unique per player, so the modification lookup has
// to correlate on the (player_id, id) pair; matching on id alone would pull
// in another player's punishment that happens to share one.
func TestModifiedSinceQuery_CorrelatesOnPlayerAndID(t *testing.T) {
	if !strings.Contains(modifiedSinceQuery, "(player_id, id) IN") {
		t.Fatalf("query does not correlate on (player_id, id):\n%s", modifiedSinceQuery)
	}
	if !strings.Contains(modifiedSinceQuery, "SELECT player_id, punishment_id FROM modifications") {
		t.Fatalf("subquery does not project the player/punishment pair:\n%s", modifiedSinceQuery)
	}
}
