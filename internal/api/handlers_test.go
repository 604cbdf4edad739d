package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"modguard/internal/models"
	"modguard/internal/punish"
	"modguard/internal/security"
	"modguard/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealth_BasicResponse(t *testing.T) {
	// Setup a minimal test router
	router := gin.New()

	// Mock handler simulating a healthy backend
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   http.StatusOK,
			"database": "connected",
			"redis":    "connected",
		})
	})

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	if w.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("expected JSON content type, got %s", w.Header().Get("Content-Type"))
	}
}

func TestLogin_RequiresValidPlayerID(t *testing.T) {
	router := gin.New()

	router.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": http.StatusBadRequest,
				"error":  gin.H{"code": "invalid_body", "message": "player_id, username and address are required"},
			})
			return
		}
		if _, err := security.ParsePlayerID(req.PlayerID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": http.StatusBadRequest,
				"error":  gin.H{"code": "invalid_player_id", "message": "player_id must be a uuid"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": http.StatusOK})
	})

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"missing body", `{}`, http.StatusBadRequest},
		{"not a uuid", `{"player_id":"steve","username":"steve","address":"1.2.3.4"}`, http.StatusBadRequest},
		{"valid uuid", `{"player_id":"069a79f4-44e9-4726-a5be-fca90e38aaf5","username":"steve","address":"1.2.3.4"}`, http.StatusOK},
		{"uppercase uuid accepted", `{"player_id":"069A79F4-44E9-4726-A5BE-FCA90E38AAF5","username":"steve","address":"1.2.3.4"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/login", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestErrorEnvelope_Shape(t *testing.T) {
	router := gin.New()
	s := &Server{}

	router.GET("/boom", func(c *gin.Context) {
		s.fail(c, http.StatusNotFound, "player_not_found", "unknown player")
	})

	req, _ := http.NewRequest("GET", "/boom", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	var body struct {
		Status int `json:"status"`
		Error  struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Status != http.StatusNotFound {
		t.Errorf("envelope status = %d, want 404", body.Status)
	}
	if body.Error.Code != "player_not_found" {
		t.Errorf("error code = %q, want player_not_found", body.Error.Code)
	}
	if body.Error.Message == "" {
		t.Error("error message must not be empty")
	}
}

func TestAcknowledge_RequiresSuccessFlag(t *testing.T) {
	router := gin.New()

	router.POST("/punishments/acknowledge", func(c *gin.Context) {
		var req acknowledgeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": http.StatusBadRequest,
				"error":  gin.H{"code": "invalid_body", "message": "player_id, punishment_id and success are required"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "recorded": true})
	})

	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{"missing success", `{"player_id":"069a79f4-44e9-4726-a5be-fca90e38aaf5","punishment_id":"abc12345"}`, http.StatusBadRequest},
		{"success true", `{"player_id":"069a79f4-44e9-4726-a5be-fca90e38aaf5","punishment_id":"abc12345","success":true}`, http.StatusOK},
		{"success false is a normal outcome", `{"player_id":"069a79f4-44e9-4726-a5be-fca90e38aaf5","punishment_id":"abc12345","success":false,"error":"player offline"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/punishments/acknowledge", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestKindOrdinals(t *testing.T) {
	types := []models.PunishmentTypeDef{
		{Name: "Chat Abuse", Ordinal: 6, Durations: []models.DurationTier{{Kind: "MUTE", LowMS: 3600000}}},
		{Name: "Griefing", Ordinal: 7, Durations: []models.DurationTier{{Kind: "BAN", LowMS: 86400000}}},
	}

	bans, mutes := kindOrdinals(types)

	wantBans := map[int32]bool{
		models.OrdinalManualBan:   true,
		models.OrdinalSecurityBan: true,
		models.OrdinalLinkedBan:   true,
		models.OrdinalBlacklist:   true,
		7:                         true,
	}
	if len(bans) != len(wantBans) {
		t.Fatalf("ban ordinals = %v, want %v", bans, wantBans)
	}
	for _, ord := range bans {
		if !wantBans[ord] {
			t.Errorf("unexpected ban ordinal %d", ord)
		}
	}

	wantMutes := map[int32]bool{models.OrdinalManualMute: true, 6: true}
	if len(mutes) != len(wantMutes) {
		t.Fatalf("mute ordinals = %v, want %v", mutes, wantMutes)
	}
	for _, ord := range mutes {
		if !wantMutes[ord] {
			t.Errorf("unexpected mute ordinal %d", ord)
		}
	}

	// kicks never land in either set
	for _, ord := range append(bans, mutes...) {
		if ord == models.OrdinalKick {
			t.Error("kick ordinal must not appear in aggregate sets")
		}
	}
}

func TestFailPlayerLookup_MapsUnknownPlayerTo404(t *testing.T) {
	router := gin.New()
	s := &Server{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	playerID := "069a79f4-44e9-4726-a5be-fca90e38aaf5"

	router.GET("/missing", func(c *gin.Context) {
		s.failPlayerLookup(c, fmt.Errorf("load linked: %w", store.ErrPlayerNotFound), "linked_load_failed", 1, playerID)
	})
	router.GET("/broken", func(c *gin.Context) {
		s.failPlayerLookup(c, errors.New("connection refused"), "linked_load_failed", 1, playerID)
	})

	tests := []struct {
		name     string
		path     string
		expected int
		code     string
	}{
		{"unknown player is the caller's 404", "/missing", http.StatusNotFound, "player_not_found"},
		{"store failure stays a 500", "/broken", http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Fatalf("expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Error.Code != tt.code {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.code)
			}
		})
	}
}

func TestInputValidation_SanitizesPathParams(t *testing.T) {
	router := gin.New()
	s := &Server{}
	router.Use(s.inputValidationMiddleware())
	router.GET("/players/:player_id", func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("player_id"))
	})

	// control characters are stripped before the handler reads the param
	req, _ := http.NewRequest("GET", "/players/ste%00ve%07", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "steve" {
		t.Errorf("handler saw param %q, want %q", w.Body.String(), "steve")
	}

	// oversized params are rejected outright
	req, _ = http.NewRequest("GET", "/players/"+strings.Repeat("a", 120), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for oversized param, got %d", w.Code)
	}
}

func TestPunishmentNotification_StructuredPayload(t *testing.T) {
	expires := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := punish.Described{
		ID:          "abc12345",
		Type:        models.OrdinalManualBan,
		Kind:        "BAN",
		Expires:     &expires,
		Description: "Ban: griefing (until 2026-03-10 12:00 UTC)",
	}

	var got struct {
		Event        string     `json:"event"`
		PunishmentID string     `json:"punishment_id"`
		Type         int        `json:"type"`
		Kind         string     `json:"kind"`
		Expires      *time.Time `json:"expires"`
		Description  string     `json:"description"`
	}
	if err := json.Unmarshal([]byte(punishmentNotification(d)), &got); err != nil {
		t.Fatalf("payload is not valid json: %v", err)
	}

	if got.Event != "punishment_created" {
		t.Errorf("event = %q, want punishment_created", got.Event)
	}
	if got.PunishmentID != "abc12345" {
		t.Errorf("punishment_id = %q, want abc12345", got.PunishmentID)
	}
	if got.Type != models.OrdinalManualBan || got.Kind != "BAN" {
		t.Errorf("type/kind = %d/%q, want %d/BAN", got.Type, got.Kind, models.OrdinalManualBan)
	}
	if got.Expires == nil || !got.Expires.Equal(expires) {
		t.Errorf("expires = %v, want %v", got.Expires, expires)
	}
	if got.Description == "" {
		t.Error("description must carry the human-readable form")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "steve", "steve"},
		{"control chars stripped", "ste\x00ve\x07", "steve"},
		{"whitespace kept", "a\tb\nc", "a\tb\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeInput(tt.input); got != tt.want {
				t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
