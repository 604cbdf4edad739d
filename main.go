package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modguard/internal/api"
	"modguard/internal/config"
	"modguard/internal/db"
	"modguard/internal/linking"
	"modguard/internal/logging"
	"modguard/internal/redis"
	"modguard/internal/storage"
	"modguard/internal/store"
)

// Combined entrypoint: API server plus the background jobs in one
// process. Deployments that split them use cmd/api and cmd/worker.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_service", "service", "modguard", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	st := store.New(logger, dbConn)
	audit := store.NewAuditSink(logger, dbConn)

	detector := linking.NewDetector(logger, st, audit, cfg.LinkProxyWindow)
	propagator := linking.NewPropagator(logger, st, audit)

	linkPool := linking.NewPool(logger, detector, propagator, redisClient, cfg.LinkQueueSize)
	linkPool.StartWorkers(cfg.LinkWorkerCount)

	sweep := linking.NewSweep(logger, st, detector, propagator)
	go sweep.Start()

	archiveJob := storage.NewArchiveJob(logger, st, buildArchiveClient(cfg, logger), cfg.AuditRetentionDays)
	go archiveJob.Start()

	srv := api.NewServer(logger, dbConn, redisClient, st, audit, linkPool, cfg)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("service_ready", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	sweep.Stop()
	archiveJob.Stop()

	linkPool.StopWorkers()
	logger.Info("link_workers_stopped")

	audit.Close()
	logger.Info("audit_sink_closed")

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("service_stopped")
}

func buildArchiveClient(cfg config.Config, logger *slog.Logger) storage.ArchiveClient {
	if cfg.ArchiveBucket != "" && cfg.ArchiveKeysRaw != "" {
		var keys map[string]string
		if err := json.Unmarshal([]byte(cfg.ArchiveKeysRaw), &keys); err == nil {
			s3Client, err := storage.NewS3Client(storage.S3Config{
				Endpoint:        cfg.ArchiveEndpoint,
				AccessKeyID:     keys["access_key_id"],
				SecretAccessKey: keys["secret_access_key"],
				Bucket:          cfg.ArchiveBucket,
				PublicURL:       keys["public_url"],
				Region:          "auto",
			})
			if err == nil {
				logger.Info("using_s3_archive", "endpoint", cfg.ArchiveEndpoint)
				return s3Client
			}
			logger.Warn("s3_archive_init_failed", "error", err)
		}
	}

	logger.Info("using_archive_simulator")
	return storage.NewArchiveSimulator(cfg.ArchiveBucket, cfg.ArchiveEndpoint)
}
