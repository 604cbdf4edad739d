package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modguard/internal/config"
	"modguard/internal/db"
	"modguard/internal/linking"
	"modguard/internal/logging"
	"modguard/internal/redis"
	"modguard/internal/storage"
	"modguard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_worker", "service", "modguard-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL (with retry)
	var dbConn *db.DB
	for i := 0; i < 5; i++ {
		dbConn, err = db.New(ctx, cfg.DBDSN)
		if err == nil {
			break
		}
		logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Connect to Redis
	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	st := store.New(logger, dbConn)
	audit := store.NewAuditSink(logger, dbConn)

	// Link sweep: periodic re-detection across recently active players
	detector := linking.NewDetector(logger, st, audit, cfg.LinkProxyWindow)
	propagator := linking.NewPropagator(logger, st, audit)
	sweep := linking.NewSweep(logger, st, detector, propagator)
	go sweep.Start()

	// Archive exporter (S3/R2 or simulator)
	archiveClient := buildArchiveClient(cfg, logger)
	archiveJob := storage.NewArchiveJob(logger, st, archiveClient, cfg.AuditRetentionDays)
	go archiveJob.Start()

	logger.Info("worker_started")

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	sweep.Stop()
	logger.Info("link_sweep_stopped")

	archiveJob.Stop()
	logger.Info("archive_job_stopped")

	audit.Close()
	logger.Info("audit_sink_closed")

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("worker_stopped")
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
