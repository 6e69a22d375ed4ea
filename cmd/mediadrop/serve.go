package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediadrop/internal/config"
	"mediadrop/internal/provider"
	"mediadrop/internal/server"
	"mediadrop/internal/widget"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the drop page and upload endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides MDROP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := server.NewLogger(os.Stdout, server.LogLevel(cfg.LogLevel), cfg.LogFormat == "json")
	server.SetDefaultLogger(logger)
	defer func() { _ = logger.Sync() }()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	backend, err := buildProvider(initCtx, cfg)
	cancel()
	if err != nil {
		logger.Error("provider init failed", map[string]any{"provider": cfg.Provider}, err)
		return err
	}

	breaker := provider.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerTimeout)

	srv := server.New(server.Config{
		Addr:            cfg.Addr,
		Version:         version,
		Provider:        provider.WithBreaker(backend, breaker),
		Breaker:         breaker,
		Upload:          provider.DefaultOptions(cfg.UploadFolder, cfg.MaxUploadBytes),
		MaxRequestBytes: cfg.MaxRequestBytes,
		ProviderTimeout: cfg.ProviderTimeout,
		RateLimit:       cfg.RateLimit,
		Images:          imagePattern(cfg.ImageSource()),
		Logger:          logger,
	})

	// Start the HTTP server in the background so signals can be handled.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting", map[string]any{
			"addr":     cfg.Addr,
			"provider": backend.Name(),
			"version":  version,
			"commit":   commit,
		})
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", map[string]any{"signal": sig.String()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", nil, err)
			return err
		}
		logger.Info("shutdown complete", nil)
		return nil
	case err := <-errCh:
		return err
	}
}

// buildProvider constructs the backend named by cfg.Provider.
func buildProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderCloudinary:
		return provider.NewCloudinary(cfg.CloudinaryURL)
	case config.ProviderMinio:
		return provider.NewMinio(ctx, provider.MinioConfig{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	case config.ProviderS3:
		return provider.NewS3(provider.S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func imagePattern(src config.ImageSource) widget.RemotePattern {
	return widget.RemotePattern{
		Protocol: src.Protocol,
		Hostname: src.Host,
		Pathname: src.PathPrefix,
	}
}
