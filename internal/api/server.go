package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"modguard/internal/config"
	"modguard/internal/db"
	"modguard/internal/linking"
	"modguard/internal/redis"
	"modguard/internal/security"
	"modguard/internal/store"
)

type Server struct {
	log      *slog.Logger
	db       *db.DB
	redis    *redis.Client
	store    *store.Store
	audit    *store.AuditSink
	linkPool *linking.Pool
	cfg      config.Config
	router   *gin.Engine

	// one token bucket per tenant for the sync endpoint
	syncLimiter *security.LimiterStore
}

func NewServer(log *slog.Logger, dbConn *db.DB, redisClient *redis.Client, st *store.Store, audit *store.AuditSink, linkPool *linking.Pool, cfg config.Config) *Server {
	s := &Server{
		log:         log,
		db:          dbConn,
		redis:       redisClient,
		store:       st,
		audit:       audit,
		linkPool:    linkPool,
		cfg:         cfg,
		router:      gin.New(),
		syncLimiter: security.NewLimiterStore(rate.Limit(cfg.SyncRatePerSecond), int(cfg.SyncRatePerSecond*2)+1, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.inputValidationMiddleware())
	r.Use(s.rateLimitMiddleware())

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		authed := v1.Group("")
		authed.Use(s.tenantAuthMiddleware())
		{
			authed.POST("/login", s.login)
			authed.POST("/disconnect", s.disconnect)
			authed.POST("/sync", s.syncThrottleMiddleware(), s.sync)

			authed.POST("/punishments", s.createPunishment)
			authed.POST("/punishments/acknowledge", s.acknowledge)
			authed.POST("/punishments/modify", s.modifyPunishment)
			authed.POST("/notes", s.addNote)
			authed.POST("/tickets", s.createTicket)

			authed.GET("/players", s.playerByUsername)
			authed.GET("/players/:player_id", s.playerProfile)
			authed.GET("/players/:player_id/linked", s.linkedAccounts)
		}
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
