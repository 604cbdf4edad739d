package security

import (
	"strings"
	"testing"
)

func TestNewShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewShortID(PunishmentIDLength)
		if len(id) != PunishmentIDLength {
			t.Fatalf("id %q has length %d, want %d", id, len(id), PunishmentIDLength)
		}
		for _, r := range id {
			if !strings.ContainsRune(idAlphabet, r) {
				t.Fatalf("id %q contains char %q outside alphabet", id, r)
			}
		}
		seen[id] = true
	}
	// collisions are retried by the store, but 1000 draws from 36^8 should
	// not collide in practice
	if len(seen) < 990 {
		t.Errorf("got %d distinct ids out of 1000", len(seen))
	}
}

func TestParsePlayerID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid uuid", "d2c9a8e1-5f7b-4a6e-9c3d-1b2a3c4d5e6f", false},
		{"uppercase normalized", "D2C9A8E1-5F7B-4A6E-9C3D-1B2A3C4D5E6F", false},
		{"empty", "", true},
		{"not a uuid", "steve", true},
		{"sql-ish", "'; DROP TABLE players;--", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlayerID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlayerID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != strings.ToLower(tt.in) {
				t.Errorf("ParsePlayerID(%q) = %q, want lowercase canonical form", tt.in, got)
			}
		})
	}
}
