package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"jstagram/internal/util"
	"jstagram/services/gallery/internal/app"
	"jstagram/services/gallery/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	appCore, err := app.New(appConfig(cfg))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer appCore.Close()

	// images are served from disk for the local backend; minio assets are
	// redirected to presigned links
	assetDir := ""
	if cfg.AssetBackend == app.AssetsLocal {
		assetDir = cfg.AssetDir
	}
	httpServer, err := server.New(server.Config{
		App:                      appCore,
		MaxUploadBytes:           cfg.MaxUploadBytes,
		MaxUploadFields:          cfg.MaxUploadFields,
		UploadDir:                cfg.UploadDir,
		AssetDir:                 assetDir,
		PublicPrefix:             cfg.PublicPrefix,
		WebRoot:                  cfg.WebRoot,
		UploadRateLimitPerMinute: cfg.UploadRateLimitPerMinute,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		TrustedProxies:           trusted,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("gallery server listening", "addr", addr,
			"catalog", cfg.CatalogBackend, "assets", cfg.AssetBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		slog.Info("gallery server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return err
	}
	return nil
}
