package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/websoft9/dropcode/internal/blobstore"
	"github.com/websoft9/dropcode/internal/catalog"
	"github.com/websoft9/dropcode/internal/config"
	httpapi "github.com/websoft9/dropcode/internal/httpapi"
	"github.com/websoft9/dropcode/internal/httpapi/handlers"
	"github.com/websoft9/dropcode/internal/identity"
	"github.com/websoft9/dropcode/internal/janitor"
	"github.com/websoft9/dropcode/internal/passwordhash"
	"github.com/websoft9/dropcode/internal/signaling"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, signaling hub, and janitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	log.Info().Str("version", cfg.Version).Str("env", cfg.Env).Msg("coordinatord: starting")

	cat, err := catalog.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	blobs, err := blobstore.New(blobstore.Config{
		Endpoint:  cfg.BlobEndpoint,
		Region:    cfg.BlobRegion,
		Bucket:    cfg.BlobBucket,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	hashPool := passwordhash.NewPool(4)
	defer hashPool.Close()

	verifier := identity.NewJWTVerifier(cfg.SessionSecret)

	hub := signaling.New(cat, cfg.RoomTTL)
	signalingHandler := signaling.NewHandler(hub, cfg.CORSAllowedOrigins, cfg.SignalingIdle, cfg.RoomTTL)

	filesAPI := handlers.NewFilesAPI(cfg, cat, blobs, hashPool)

	j := janitor.New(cat, blobs, hub, asynq.RedisClientOpt{Addr: cfg.RedisAddr}, cfg.JanitorInterval, cfg.JanitorOrphanGrace)
	if err := j.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer j.Shutdown()

	srv := httpapi.New(cfg, cat, blobs, filesAPI, signalingHandler, verifier)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := srv.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	log.Info().Msg("coordinatord: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("coordinatord: forced shutdown")
	}
	log.Info().Msg("coordinatord: exited")
	return nil
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" && cfg.LogFormat == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
