// Package main wires together the card service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/cardsmith/og-card-service/internal/access"
	"github.com/cardsmith/og-card-service/internal/api"
	"github.com/cardsmith/og-card-service/internal/clock/system"
	"github.com/cardsmith/og-card-service/internal/config"
	"github.com/cardsmith/og-card-service/internal/id/uuid"
	"github.com/cardsmith/og-card-service/internal/logging"
	"github.com/cardsmith/og-card-service/internal/ogcard"
	"github.com/cardsmith/og-card-service/internal/render"
	"github.com/cardsmith/og-card-service/internal/service"
	"github.com/cardsmith/og-card-service/internal/source"
	gcsStorage "github.com/cardsmith/og-card-service/internal/storage/gcs"
	localStorage "github.com/cardsmith/og-card-service/internal/storage/local"
	memoryStorage "github.com/cardsmith/og-card-service/internal/storage/memory"
	postgresStorage "github.com/cardsmith/og-card-service/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	files, assetsDir, err := newFileStore(ctx, cfg)
	if err != nil {
		logger.Fatal("image store init failed", zap.Error(err))
	}

	renderer, err := render.New()
	if err != nil {
		logger.Fatal("renderer init failed", zap.Error(err))
	}
	resolver := source.New(source.Config{
		MaxBytes:            cfg.Source.MaxBytes,
		FetchTimeout:        cfg.FetchTimeout(),
		AllowPrivateNetwork: cfg.Source.AllowPrivateNetwork,
	})

	clock := system.New()
	svc := service.New(resolver, renderer, store, files, clock, uuid.New(), logger.Named("service"))
	gate := access.New(cfg, clock)
	apiServer := api.NewServer(svc, gate, cfg, assetsDir, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newStore(ctx context.Context, cfg config.Config) (ogcard.Store, error) {
	switch cfg.DB.Provider {
	case "postgres":
		return postgresStorage.New(ctx, postgresStorage.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
	default:
		return memoryStorage.New(), nil
	}
}

// newFileStore builds the configured image store. The returned assetsDir
// is non-empty only for the local provider, which serves its files
// directly.
func newFileStore(ctx context.Context, cfg config.Config) (ogcard.FileStore, string, error) {
	switch cfg.Images.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcsStorage.New(client, gcsStorage.Config{
			Bucket:        cfg.Images.GCSBucket,
			Prefix:        cfg.Images.GCSPrefix,
			PublicBaseURL: cfg.Server.PublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		store, err := localStorage.New(localStorage.Config{
			Dir:           cfg.Images.Dir,
			PublicBaseURL: cfg.Server.PublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	}
}
