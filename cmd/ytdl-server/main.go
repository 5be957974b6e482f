package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"ytdlserver/internal/adapters/localstorage"
	"ytdlserver/internal/adapters/memstore"
	"ytdlserver/internal/adapters/webhook"
	"ytdlserver/internal/adapters/ytdlp"
	"ytdlserver/internal/config"
	"ytdlserver/internal/server"
	"ytdlserver/internal/service"
	"ytdlserver/internal/worker"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, environment variables might be set manually
		logrus.Info("No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := newLogger(cfg)

	artifacts := localstorage.New(cfg.DownloadDir)
	if err := artifacts.Ensure(); err != nil {
		log.WithError(err).Fatal("Failed to prepare download directory")
	}

	extractor := ytdlp.New(cfg.BinaryPath, ytdlp.Options{
		Format:       cfg.Format,
		MergeFormat:  cfg.MergeFormat,
		AudioFormat:  cfg.AudioFormat,
		AudioQuality: cfg.AudioQuality,
		RecodeFormat: cfg.RecodeFormat,
		ArchiveFile:  cfg.ArchiveFile,
		Timeout:      cfg.DownloadTimeout,
	})

	// Best-effort self-update before accepting traffic.
	if cfg.SelfUpdate {
		if err := extractor.Update(context.Background()); err != nil {
			log.WithError(err).Warn("yt-dlp self-update failed")
		} else {
			log.Info("yt-dlp self-update finished")
		}
	}

	version, err := extractor.Version(context.Background())
	if err != nil {
		log.WithError(err).Warn("Could not determine yt-dlp version")
		version = "unknown"
	}
	log.WithField("ytdlp_version", version).Info("Extractor ready")

	var store *memstore.Store
	if cfg.JobTTL > 0 {
		store = memstore.NewWithEviction(cfg.JobTTL, cfg.JobTTL/2)
	} else {
		store = memstore.New()
	}
	defer store.Close()

	pool := worker.NewPool(worker.Config{MaxWorkers: cfg.MaxWorkers, QueueSize: cfg.QueueSize})
	notifier := webhook.New(cfg.WebhookTimeout)
	manager := service.NewManager(store, extractor, notifier, pool, artifacts, log)

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(manager, pool, artifacts, cfg.AuthToken, version, log)

	httpServer := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Router(),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	pool.Stop(ctx)
	log.Info("Server exited")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
