package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"receipts/internal/config"
	"receipts/internal/extract"
	"receipts/internal/handlers"
	"receipts/internal/lock"
	"receipts/internal/metrics"
	"receipts/internal/services"
	"receipts/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// 1. Load the configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logging, optionally into a file as well
	var logFile io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logFile = f
	}
	defer logger.Init("receipts", true, false, logFile).Close()
	logger.SetFlags(0)
	if !cfg.Log.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath); err != nil {
		logger.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	// 3. Prepare the data files
	campaigns := storage.NewCampaignStore(cfg.Data.CampaignsPath())
	if err := campaigns.Init(ctx); err != nil {
		return err
	}
	artifacts := storage.NewArtifactStore(cfg.Data.ArtifactsPath(), cfg.Data.ArtifactPrefix)
	if err := artifacts.Init(ctx); err != nil {
		return err
	}
	logger.Infof("Campaigns stored in %s, artifacts in %s", campaigns.Path(), cfg.Data.ArtifactsPath())
	persons := storage.NewPersonRegistry(cfg.Data.PersonsPath())
	logger.Infof("Loaded %d person records from %s", len(persons.LoadAll(ctx)), cfg.Data.PersonsPath())

	// 4. Pick the lock backend
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Lock.Backend == "redis" {
		redisLock, err := lock.NewRedisLock(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisLock.Close()
		locker = redisLock
		logger.Infof("Using redis lock at %s", cfg.Redis.Address)
	}

	// 5. Set up the extractor
	var extractor extract.Extractor = extract.Disabled{}
	if cfg.Gemini.APIKey != "" {
		g, err := extract.NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return err
		}
		extractor = g
	} else {
		logger.Warning("No Gemini API key configured; image processing is disabled")
	}

	// 6. Initialize the campaign service and the HTTP handler
	m := metrics.New()
	service := services.NewCampaignService(services.Deps{
		Persons:     persons,
		Campaigns:   campaigns,
		Artifacts:   artifacts,
		Extractor:   extractor,
		Locker:      locker,
		LockTimeout: cfg.Lock.Timeout,
		Metrics:     m,
	})
	hidden := []string{cfg.Data.CampaignsPath(), cfg.Data.PersonsPath(), cfg.Data.ArtifactsPath()}
	for _, p := range []string{configPath, cfg.Log.File} {
		if p != "" {
			hidden = append(hidden, p)
		}
	}
	httpHandler := handlers.NewHTTPHandler(service, m, cfg.Server.MaxUploadMB<<20, cfg.Server.StaticDir, hidden...)

	// 7. Set up the Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	httpHandler.RegisterRoutes(r)

	// 8. Run the server until the context is cancelled
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on http://localhost:%d", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
