// Package vaultd wires the vault client core into the local daemon.
package vaultd

import (
	"fmt"
	"log/slog"
	"net/http"

	"zerointrusion/vault-client/internal/api"
	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/config"
	"zerointrusion/vault-client/internal/crypto"
	"zerointrusion/vault-client/internal/hubclient"
	"zerointrusion/vault-client/internal/identity"
	"zerointrusion/vault-client/internal/notify"
	"zerointrusion/vault-client/internal/platform/metrics"
	"zerointrusion/vault-client/internal/router"
	"zerointrusion/vault-client/internal/securestore"
)

// Daemon is the assembled object graph.
type Daemon struct {
	Server  *api.Server
	Client  *hubclient.Client
	Gate    *biometric.Gate
	Bridge  *biometric.Bridge
	Metrics *metrics.Metrics
}

// Build assembles the daemon from a validated configuration. The biometric
// platform is a bridge answered by the UI shell over the local API.
func Build(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := biometric.ParsePolicy(cfg.Biometric.Policy)
	if err != nil {
		return nil, err
	}
	hash, err := crypto.ParseHashAlgorithm(cfg.Crypto.KDFHash)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.New(hash)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	bridge := biometric.NewBridge(biometric.CapabilityNone)
	gate, err := biometric.NewGate(bridge,
		biometric.WithPolicy(policy),
		biometric.WithLogger(logger.With("component", "biometric")),
		biometric.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	repo := identity.NewRepository(securestore.NewVault(backend, gate.Unlocker()))

	client, err := hubclient.New(cfg.Hub.BaseURL, repo, gate,
		hubclient.WithEndpoints(cfg.Hub.Endpoints),
		hubclient.WithHTTPClient(&http.Client{Timeout: cfg.Hub.Timeout}),
		hubclient.WithCipher(cipher),
		hubclient.WithLogger(logger.With("component", "hubclient")),
		hubclient.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	rt := router.New(router.Bind(client),
		router.WithDuplicateWindow(cfg.Router.DuplicateWindow),
		router.WithLogger(logger.With("component", "router")),
		router.WithMetrics(m),
	)
	windows, err := notify.NewHandler(gate, rt,
		notify.WithWindow(cfg.Notify.Window),
		notify.WithLogger(logger.With("component", "notify")),
		notify.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	srv, err := api.NewServer(api.Config{
		Addr:    cfg.API.ListenAddr,
		Token:   cfg.API.Token,
		Router:  rt,
		Windows: windows,
		Device:  client,
		Bridge:  bridge,
		Metrics: m,
		Logger:  logger.With("component", "api"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("vault core assembled",
		"biometric_policy", gate.Policy().String(),
		"kdf_hash", string(cipher.Hash()),
		"persistent_store", cfg.Store.Path != "",
	)
	return &Daemon{Server: srv, Client: client, Gate: gate, Bridge: bridge, Metrics: m}, nil
}

func newBackend(cfg config.StoreConfig) (securestore.Backend, error) {
	if cfg.Path == "" {
		return securestore.NewMemoryBackend(), nil
	}
	backend, err := securestore.NewFileBackend(cfg.Path, cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	return backend, nil
}
