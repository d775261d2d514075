package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"zerointrusion/vault-client/internal/composition/vaultd"
	"zerointrusion/vault-client/internal/config"
	"zerointrusion/vault-client/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to vault.yaml (optional)")
	listenAddr := flag.String("listen-addr", "", "Local API listen address override")
	apiToken := flag.String("api-token", "", "Token required in X-Vault-API-Token (optional)")
	hubURL := flag.String("hub-url", "", "Credential hub base URL override")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	if *showVersion {
		fmt.Printf("vaultd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *listenAddr != "" {
		_ = os.Setenv("VAULT_LISTEN_ADDR", *listenAddr)
	}
	if *apiToken != "" {
		_ = os.Setenv("VAULT_API_TOKEN", *apiToken)
	}
	if *hubURL != "" {
		_ = os.Setenv("VAULT_HUB_BASE_URL", *hubURL)
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("vaultd config: %v", err)
	}
	d, err := vaultd.Build(cfg, logger)
	if err != nil {
		log.Fatalf("vaultd failed to initialize: %v", err)
	}

	logger.Info("vaultd starting", "addr", cfg.API.ListenAddr, "version", version)
	if err := d.Server.Run(ctx); err != nil {
		log.Fatalf("vaultd failed: %v", err)
	}
	logger.Info("vaultd stopped")
}
