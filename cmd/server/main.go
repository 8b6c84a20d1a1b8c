// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/rest"
	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/metadata"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/registry"
	"github.com/jeremyhahn/go-passkey/pkg/relyingparty"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/file"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/passkey/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-passkey server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("PASSKEY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Debug())
	logger.Info("Starting passkey server",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.RelyingParty.RPID)

	backend, err := newBackend(cfg)
	if err != nil {
		logger.Error("Failed to initialize storage backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	service, err := newService(cfg, backend, logger)
	if err != nil {
		logger.Error("Failed to create relying party service", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	server, err := rest.NewServer(&rest.Config{
		Port:        cfg.Server.Port,
		Service:     service,
		RateLimiter: limiter,
		Version:     version,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	shutdownCtx := setupSignalHandler(logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Server started successfully", "port", server.Port())

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", "error", err)
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Error("Error during server shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped successfully")
}

// newBackend builds the configured storage engine.
func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "file":
		return file.New(cfg.Storage.Path)
	default:
		return storage.NewMemoryBackend()
	}
}

// newService wires the relying party service from configuration.
func newService(cfg *config.Config, backend storage.Backend, logger *slog.Logger) (*relyingparty.Service, error) {
	var resolver metadata.Resolver
	if cfg.Metadata.Enabled {
		embedded := metadata.NewEmbeddedResolver()
		if cfg.Metadata.TablePath != "" {
			table, err := os.ReadFile(cfg.Metadata.TablePath)
			if err != nil {
				return nil, fmt.Errorf("read metadata table: %w", err)
			}
			site, err := metadata.NewStaticResolver(table)
			if err != nil {
				return nil, err
			}
			resolver = metadata.NewCompositeResolver(site, embedded)
		} else {
			resolver = embedded
		}
	}

	var tokens relyingparty.TokenGenerator
	if cfg.Auth.JWTSecret != "" {
		generator, err := relyingparty.NewJWTGenerator(&relyingparty.JWTGeneratorConfig{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.JWTIssuer,
		})
		if err != nil {
			return nil, err
		}
		tokens = generator
	}

	return relyingparty.NewService(relyingparty.ServiceParams{
		Config:     &cfg.RelyingParty,
		Ceremonies: ceremony.NewBackendStore(backend),
		Registry:   registry.NewBackendStore(backend),
		Resolver:   resolver,
		Tokens:     tokens,
		Logger:     logger,
	})
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
