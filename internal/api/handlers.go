package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"modguard/internal/linking"
	"modguard/internal/models"
	"modguard/internal/punish"
	"modguard/internal/security"
	"modguard/internal/store"
)

func (s *Server) fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"status": status,
		"error":  gin.H{"code": code, "message": message},
	})
	c.Abort()
}

type loginRequest struct {
	PlayerID string  `json:"player_id" binding:"required"`
	Username string  `json:"username" binding:"required"`
	Address  string  `json:"address" binding:"required"`
	Country  *string `json:"country"`
	ASN      *int64  `json:"asn"`
	Org      *string `json:"org"`
	Proxy    bool    `json:"proxy"`
}

func (s *Server) login(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id, username and address are required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	now := time.Now()

	if err := s.store.UpsertLogin(ctx, tenant.ID, playerID, now); err != nil {
		s.log.Error("login_upsert_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}
	if err := s.store.RecordUsername(ctx, tenant.ID, playerID, req.Username); err != nil {
		s.log.Warn("username_record_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
	}

	newIP, err := s.store.TouchIP(ctx, tenant.ID, models.IPRecord{
		PlayerID: playerID,
		Address:  req.Address,
		Country:  req.Country,
		ASN:      req.ASN,
		Org:      req.Org,
		Proxy:    req.Proxy,
	}, now)
	if err != nil {
		s.log.Warn("ip_record_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
	}
	if newIP && s.linkPool != nil {
		s.linkPool.Enqueue(linking.Job{
			TenantID:  tenant.ID,
			PlayerID:  playerID,
			Addresses: []string{req.Address},
		})
	}

	types, err := s.store.PunishmentTypes(ctx, tenant.ID)
	if err != nil {
		s.log.Error("types_load_failed", "tenant_id", tenant.ID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}
	puns, err := s.store.PunishmentsForPlayer(ctx, tenant.ID, playerID)
	if err != nil {
		s.log.Error("punishments_load_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}

	var active []models.Punishment
	for _, p := range puns {
		if punish.IsActive(p, types, now) {
			active = append(active, p)
		}
	}
	pending := punish.SelectPending(puns, types, time.Time{}, now, s.cfg.MaxPendingPerKind)

	drained, err := s.store.DrainNotifications(ctx, tenant.ID, []string{playerID})
	if err != nil {
		s.log.Warn("notification_drain_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
	}
	notifications := drained[playerID]
	if notifications == nil {
		notifications = []models.Notification{}
	}

	s.log.Info("login_processed",
		"tenant_id", tenant.ID,
		"player_id", playerID,
		"new_ip", newIP,
		"active", len(active),
		"pending_bans", len(pending.Bans),
		"pending_mutes", len(pending.Mutes),
	)

	c.JSON(http.StatusOK, gin.H{
		"status":    http.StatusOK,
		"player_id": playerID,
		"active":    punish.DescribeAll(active, types, now),
		"pending": gin.H{
			"bans":  punish.DescribeAll(pending.Bans, types, now),
			"mutes": punish.DescribeAll(pending.Mutes, types, now),
		},
		"notifications": notifications,
	})
}

type disconnectRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
}

func (s *Server) disconnect(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id is required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.store.Disconnect(ctx, tenant.ID, playerID, time.Now()); err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			s.fail(c, http.StatusNotFound, "player_not_found", "unknown player")
			return
		}
		s.log.Error("disconnect_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "disconnect failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "player_id": playerID})
}

type syncRequest struct {
	OnlinePlayers []string `json:"online_players"`
	LastSync      *string  `json:"last_sync"`
}

func (s *Server) sync(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "online_players must be a list of player ids")
		return
	}

	online := make([]string, 0, len(req.OnlinePlayers))
	for _, raw := range req.OnlinePlayers {
		id, err := security.ParsePlayerID(raw)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "invalid_player_id", fmt.Sprintf("invalid player id %q", raw))
			return
		}
		online = append(online, id)
	}

	var lastSync time.Time
	if req.LastSync != nil && *req.LastSync != "" {
		t, err := time.Parse(time.RFC3339, *req.LastSync)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "invalid_last_sync", "last_sync must be RFC 3339")
			return
		}
		lastSync = t
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	now := time.Now()

	if err := s.store.SetOnlinePlayers(ctx, tenant.ID, online); err != nil {
		s.log.Error("sync_online_failed", "tenant_id", tenant.ID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "sync failed")
		return
	}

	types, err := s.store.PunishmentTypes(ctx, tenant.ID)
	if err != nil {
		s.log.Error("types_load_failed", "tenant_id", tenant.ID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "sync failed")
		return
	}

	players := gin.H{}
	if len(online) > 0 {
		unstarted, err := s.store.UnstartedForPlayers(ctx, tenant.ID, online)
		if err != nil {
			s.log.Error("sync_unstarted_failed", "tenant_id", tenant.ID, "error", err)
			s.fail(c, http.StatusInternalServerError, "internal_error", "sync failed")
			return
		}
		started, err := s.store.StartedSince(ctx, tenant.ID, online, lastSync)
		if err != nil {
			s.log.Error("sync_started_failed", "tenant_id", tenant.ID, "error", err)
			s.fail(c, http.StatusInternalServerError, "internal_error", "sync failed")
			return
		}
		modified, err := s.store.ModifiedSince(ctx, tenant.ID, online, lastSync)
		if err != nil {
			s.log.Error("sync_modified_failed", "tenant_id", tenant.ID, "error", err)
			s.fail(c, http.StatusInternalServerError, "internal_error", "sync failed")
			return
		}
		drained, err := s.store.DrainNotifications(ctx, tenant.ID, online)
		if err != nil {
			s.log.Warn("notification_drain_failed", "tenant_id", tenant.ID, "error", err)
		}

		byPlayer := map[string][]models.Punishment{}
		for _, p := range unstarted {
			byPlayer[p.PlayerID] = append(byPlayer[p.PlayerID], p)
		}
		startedBy := map[string][]models.Punishment{}
		for _, p := range started {
			startedBy[p.PlayerID] = append(startedBy[p.PlayerID], p)
		}
		modifiedBy := map[string][]models.Punishment{}
		for _, p := range modified {
			modifiedBy[p.PlayerID] = append(modifiedBy[p.PlayerID], p)
		}

		for _, playerID := range online {
			sel := punish.SelectPending(byPlayer[playerID], types, lastSync, now, s.cfg.MaxPendingPerKind)
			notifications := drained[playerID]
			if notifications == nil {
				notifications = []models.Notification{}
			}
			players[playerID] = gin.H{
				"pending": gin.H{
					"bans":  punish.DescribeAll(sel.Bans, types, now),
					"mutes": punish.DescribeAll(sel.Mutes, types, now),
				},
				"started":       punish.DescribeAll(startedBy[playerID], types, now),
				"modified":      punish.DescribeAll(modifiedBy[playerID], types, now),
				"notifications": notifications,
			}
		}
	}

	banOrdinals, muteOrdinals := kindOrdinals(types)
	stats, err := s.store.Stats(ctx, tenant.ID, banOrdinals, muteOrdinals)
	if err != nil {
		s.log.Warn("sync_stats_failed", "tenant_id", tenant.ID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    http.StatusOK,
		"players":   players,
		"stats":     stats,
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

func customOrdinalExists(ordinal int, types []models.PunishmentTypeDef) bool {
	for _, t := range types {
		if t.Ordinal == ordinal {
			return true
		}
	}
	return false
}

// kindOrdinals expands the tenant's type table into the ordinal sets the
// SQL aggregates filter on.
func kindOrdinals(types []models.PunishmentTypeDef) (bans, mutes []int32) {
	ordinals := []int{
		models.OrdinalKick, models.OrdinalManualMute, models.OrdinalManualBan,
		models.OrdinalSecurityBan, models.OrdinalLinkedBan, models.OrdinalBlacklist,
	}
	for _, t := range types {
		if t.Ordinal >= models.FirstCustomOrdinal {
			ordinals = append(ordinals, t.Ordinal)
		}
	}
	for _, ord := range ordinals {
		switch punish.Classify(ord, types) {
		case punish.Ban:
			bans = append(bans, int32(ord))
		case punish.Mute:
			mutes = append(mutes, int32(ord))
		}
	}
	return bans, mutes
}

type acknowledgeRequest struct {
	PlayerID     string  `json:"player_id" binding:"required"`
	PunishmentID string  `json:"punishment_id" binding:"required"`
	Success      *bool   `json:"success" binding:"required"`
	ExecutedAt   *string `json:"executed_at"`
	Error        string  `json:"error"`
}

func (s *Server) acknowledge(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id, punishment_id and success are required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	executedAt := time.Now()
	if req.ExecutedAt != nil && *req.ExecutedAt != "" {
		t, err := time.Parse(time.RFC3339, *req.ExecutedAt)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "invalid_executed_at", "executed_at must be RFC 3339")
			return
		}
		executedAt = t
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if *req.Success {
		err = s.store.AcknowledgeSuccess(ctx, tenant.ID, playerID, req.PunishmentID, executedAt)
	} else {
		err = s.store.AcknowledgeFailure(ctx, tenant.ID, playerID, req.PunishmentID, req.Error)
	}
	if err != nil {
		if errors.Is(err, store.ErrPunishmentNotFound) {
			s.fail(c, http.StatusNotFound, "punishment_not_found", "unknown punishment")
			return
		}
		s.log.Error("acknowledge_failed",
			"tenant_id", tenant.ID, "punishment_id", req.PunishmentID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "acknowledge failed")
		return
	}

	if !*req.Success {
		// a failed execution is a recorded outcome, not an error path
		s.log.Warn("punishment_exec_failed",
			"tenant_id", tenant.ID,
			"player_id", playerID,
			"punishment_id", req.PunishmentID,
			"exec_error", req.Error,
		)
		s.audit.Write(tenant.ID,
			fmt.Sprintf("Server reported failed execution of %s on %s: %s", req.PunishmentID, playerID, req.Error),
			"WARN", "acknowledge")
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        http.StatusOK,
		"punishment_id": req.PunishmentID,
		"recorded":      true,
	})
}

type createPunishmentRequest struct {
	PlayerID    string `json:"player_id" binding:"required"`
	Type        string `json:"type"`
	Ordinal     *int   `json:"ordinal"`
	Reason      string `json:"reason"`
	IssuerName  string `json:"issuer_name" binding:"required"`
	DurationMS  *int64 `json:"duration_ms"`
	AltBlocking bool   `json:"alt_blocking"`
}

func (s *Server) createPunishment(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req createPunishmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id and issuer_name are required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	now := time.Now()

	types, err := s.store.PunishmentTypes(ctx, tenant.ID)
	if err != nil {
		s.log.Error("types_load_failed", "tenant_id", tenant.ID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "punishment creation failed")
		return
	}

	var ordinal int
	switch {
	case req.Type != "":
		ord, ok := punish.ResolveOrdinal(req.Type, types)
		if !ok {
			s.fail(c, http.StatusBadRequest, "unknown_type", fmt.Sprintf("unknown punishment type %q", req.Type))
			return
		}
		ordinal = ord
	case req.Ordinal != nil:
		ordinal = *req.Ordinal
		if ordinal < 0 || (ordinal >= models.FirstCustomOrdinal && !customOrdinalExists(ordinal, types)) {
			s.fail(c, http.StatusBadRequest, "unknown_type", fmt.Sprintf("unknown punishment ordinal %d", ordinal))
			return
		}
	default:
		s.fail(c, http.StatusBadRequest, "invalid_body", "type or ordinal is required")
		return
	}

	duration := models.PermanentDuration
	if req.DurationMS != nil {
		duration = *req.DurationMS
	}

	created, err := s.store.CreatePunishment(ctx, tenant.ID, models.Punishment{
		PlayerID:    playerID,
		IssuerName:  req.IssuerName,
		Issued:      now,
		Type:        ordinal,
		Reason:      req.Reason,
		DurationMS:  duration,
		Active:      true,
		AltBlocking: req.AltBlocking,
	})
	if err != nil {
		s.log.Error("punishment_create_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "punishment creation failed")
		return
	}

	s.audit.Write(tenant.ID,
		fmt.Sprintf("%s issued %s (%s) on %s: %s",
			req.IssuerName, created.ID, punish.TypeName(ordinal, types), playerID, req.Reason),
		"INFO", "punishments")

	// an online player learns immediately instead of waiting for a poll
	if player, err := s.store.Player(ctx, tenant.ID, playerID); err == nil && player.Online {
		payload := punishmentNotification(punish.Describe(created, types, now))
		if err := s.store.QueueNotification(ctx, tenant.ID, playerID, payload); err != nil {
			s.log.Warn("notification_queue_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
		}
	}

	s.log.Info("punishment_created",
		"tenant_id", tenant.ID,
		"player_id", playerID,
		"punishment_id", created.ID,
		"type", ordinal,
		"alt_blocking", req.AltBlocking,
	)

	c.JSON(http.StatusCreated, gin.H{
		"status":     http.StatusCreated,
		"punishment": punish.Describe(created, types, now),
	})
}

// punishmentNotification renders the payload queued for an online player
// when a punishment lands. It is structured JSON, not prose, so the plugin
// can enforce from the id and kind fields instead of parsing a message.
func punishmentNotification(d punish.Described) string {
	payload, _ := json.Marshal(gin.H{
		"event":         "punishment_created",
		"punishment_id": d.ID,
		"type":          d.Type,
		"kind":          d.Kind,
		"expires":       d.Expires,
		"description":   d.Description,
	})
	return string(payload)
}

type modifyRequest struct {
	PlayerID            string `json:"player_id" binding:"required"`
	PunishmentID        string `json:"punishment_id" binding:"required"`
	Kind                string `json:"kind" binding:"required"`
	Actor               string `json:"actor" binding:"required"`
	EffectiveDurationMS *int64 `json:"effective_duration_ms"`
}

func (s *Server) modifyPunishment(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req modifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id, punishment_id, kind and actor are required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	switch req.Kind {
	case models.ModManualPardon, models.ModAppealAccept:
	case models.ModManualDurationChange:
		if req.EffectiveDurationMS == nil {
			s.fail(c, http.StatusBadRequest, "invalid_body", "effective_duration_ms is required for duration changes")
			return
		}
	default:
		s.fail(c, http.StatusBadRequest, "unknown_kind", fmt.Sprintf("unknown modification kind %q", req.Kind))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	err = s.store.AddModification(ctx, tenant.ID, playerID, req.PunishmentID, models.Modification{
		PunishmentID:        req.PunishmentID,
		Kind:                req.Kind,
		Actor:               req.Actor,
		Issued:              time.Now(),
		EffectiveDurationMS: req.EffectiveDurationMS,
	})
	if err != nil {
		if errors.Is(err, store.ErrPunishmentNotFound) {
			s.fail(c, http.StatusNotFound, "punishment_not_found", "unknown punishment")
			return
		}
		s.log.Error("modification_failed",
			"tenant_id", tenant.ID, "punishment_id", req.PunishmentID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "modification failed")
		return
	}

	s.audit.Write(tenant.ID,
		fmt.Sprintf("%s applied %s to %s on %s", req.Actor, req.Kind, req.PunishmentID, playerID),
		"INFO", "punishments")

	c.JSON(http.StatusOK, gin.H{
		"status":        http.StatusOK,
		"punishment_id": req.PunishmentID,
		"kind":          req.Kind,
	})
}

type noteRequest struct {
	PlayerID     string `json:"player_id" binding:"required"`
	PunishmentID string `json:"punishment_id" binding:"required"`
	Author       string `json:"author" binding:"required"`
	Text         string `json:"text" binding:"required"`
}

func (s *Server) addNote(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id, punishment_id, author and text are required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	err = s.store.AddNote(ctx, tenant.ID, playerID, req.PunishmentID, models.Note{
		Author:  req.Author,
		Text:    req.Text,
		Written: time.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrPunishmentNotFound) {
			s.fail(c, http.StatusNotFound, "punishment_not_found", "unknown punishment")
			return
		}
		s.log.Error("note_failed", "tenant_id", tenant.ID, "punishment_id", req.PunishmentID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "note failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "punishment_id": req.PunishmentID})
}

type ticketRequest struct {
	PlayerID     string `json:"player_id" binding:"required"`
	Subject      string `json:"subject" binding:"required"`
	Body         string `json:"body"`
	PunishmentID string `json:"punishment_id"`
}

func (s *Server) createTicket(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	var req ticketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_body", "player_id and subject are required")
		return
	}
	playerID, err := security.ParsePlayerID(req.PlayerID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	ticket, err := s.store.CreateTicket(ctx, tenant.ID, models.Ticket{
		PlayerID:     playerID,
		Subject:      req.Subject,
		Body:         req.Body,
		PunishmentID: req.PunishmentID,
	})
	if err != nil {
		s.log.Error("ticket_create_failed", "tenant_id", tenant.ID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "ticket creation failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": http.StatusCreated, "ticket": ticket})
}

func (s *Server) playerProfile(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	playerID, err := security.ParsePlayerID(c.Param("player_id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	cacheKey := fmt.Sprintf("profile:%d:%s", tenant.ID, playerID)
	if cached, err := s.redis.Get(ctx, cacheKey); err == nil && cached != "" {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
		return
	}

	body, err := s.buildProfile(c, tenant.ID, playerID)
	if err != nil {
		return // buildProfile already wrote the response
	}

	if err := s.redis.Set(ctx, cacheKey, string(body), 60*time.Second); err != nil {
		s.log.Warn("profile_cache_failed", "error", err)
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) playerByUsername(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	username := c.Query("username")
	if len(username) < 2 {
		s.fail(c, http.StatusBadRequest, "invalid_query", "username must have at least 2 characters")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	playerID, err := s.store.PlayerIDByUsername(ctx, tenant.ID, username)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			s.fail(c, http.StatusNotFound, "player_not_found", "no player with that username")
			return
		}
		s.log.Error("username_lookup_failed", "tenant_id", tenant.ID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "lookup failed")
		return
	}

	body, err := s.buildProfile(c, tenant.ID, playerID)
	if err != nil {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// buildProfile aggregates the player view and writes the error response
// itself on failure.
func (s *Server) buildProfile(c *gin.Context, tenantID int64, playerID string) ([]byte, error) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	now := time.Now()

	player, err := s.store.Player(ctx, tenantID, playerID)
	if err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) {
			s.fail(c, http.StatusNotFound, "player_not_found", "unknown player")
			return nil, err
		}
		s.log.Error("profile_load_failed", "tenant_id", tenantID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "profile failed")
		return nil, err
	}

	usernames, err := s.store.UsernameHistory(ctx, tenantID, playerID)
	if err != nil {
		s.log.Error("profile_load_failed", "tenant_id", tenantID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "profile failed")
		return nil, err
	}
	ips, err := s.store.IPRecords(ctx, tenantID, playerID)
	if err != nil {
		s.log.Error("profile_load_failed", "tenant_id", tenantID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "profile failed")
		return nil, err
	}
	puns, err := s.store.PunishmentsForPlayer(ctx, tenantID, playerID)
	if err != nil {
		s.log.Error("profile_load_failed", "tenant_id", tenantID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "profile failed")
		return nil, err
	}
	types, err := s.store.PunishmentTypes(ctx, tenantID)
	if err != nil {
		s.log.Error("profile_load_failed", "tenant_id", tenantID, "player_id", playerID, "error", err)
		s.fail(c, http.StatusInternalServerError, "internal_error", "profile failed")
		return nil, err
	}

	body, err := json.Marshal(gin.H{
		"status":           http.StatusOK,
		"player":           player,
		"username_history": usernames,
		"ip_records":       ips,
		"punishments":      puns,
		"described":        punish.DescribeAll(puns, types, now),
	})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "internal_error", "profile failed")
		return nil, err
	}
	return body, nil
}

// failPlayerLookup maps a player-scoped store read failure to the response:
// an unknown player is the caller's mistake and gets a 404, anything else is
// ours and gets logged with a 500.
func (s *Server) failPlayerLookup(c *gin.Context, err error, event string, tenantID int64, playerID string) {
	if errors.Is(err, store.ErrPlayerNotFound) {
		s.fail(c, http.StatusNotFound, "player_not_found", "unknown player")
		return
	}
	s.log.Error(event, "tenant_id", tenantID, "player_id", playerID, "error", err)
	s.fail(c, http.StatusInternalServerError, "internal_error", "lookup failed")
}

func (s *Server) linkedAccounts(c *gin.Context) {
	tenant, ok := s.tenant(c)
	if !ok {
		return
	}

	playerID, err := security.ParsePlayerID(c.Param("player_id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid_player_id", "player_id must be a uuid")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	linked, err := s.store.LinkedAccounts(ctx, tenant.ID, playerID)
	if err != nil {
		s.failPlayerLookup(c, err, "linked_load_failed", tenant.ID, playerID)
		return
	}

	accounts := make([]gin.H, 0, len(linked))
	for _, id := range linked {
		username, err := s.store.LatestUsername(ctx, tenant.ID, id)
		if err != nil {
			s.log.Warn("linked_username_failed", "tenant_id", tenant.ID, "player_id", id, "error", err)
		}
		accounts = append(accounts, gin.H{"player_id": id, "username": username})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    http.StatusOK,
		"player_id": playerID,
		"linked":    accounts,
	})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbStatus := "connected"
	if err := s.db.Pool.Ping(ctx); err != nil {
		dbStatus = "error: " + err.Error()
	}

	redisStatus := "connected"
	if err := s.redis.RDB().Ping(ctx).Err(); err != nil {
		redisStatus = "error: " + err.Error()
	}

	day := time.Now().UTC().Format("2006-01-02")
	linksToday, _ := s.redis.GetInt(ctx, "links:created:"+day)
	linkedBansToday, _ := s.redis.GetInt(ctx, "links:bans:"+day)

	status := http.StatusOK
	if dbStatus != "connected" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   status,
		"database": dbStatus,
		"redis":    redisStatus,
		"counters": gin.H{
			"links_created_today": linksToday,
			"linked_bans_today":   linkedBansToday,
		},
	})
}
