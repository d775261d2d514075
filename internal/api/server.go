// Package api is the local HTTP surface the UI shell drives: scanned QR
// payloads, push windows, identity bootstrap and the biometric bridge.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/hubclient"
	"zerointrusion/vault-client/internal/identity"
	"zerointrusion/vault-client/internal/notify"
	"zerointrusion/vault-client/internal/platform/metrics"
	"zerointrusion/vault-client/internal/router"
)

const (
	DefaultAddr = "127.0.0.1:8787"
	HeaderToken = "X-Vault-API-Token"

	maxBodyBytes = 64 << 10
)

var (
	ErrRouterRequired  = errors.New("router is required")
	ErrWindowsRequired = errors.New("notification handler is required")
	ErrDeviceRequired  = errors.New("device service is required")
)

// Device is the identity surface of the hub client.
type Device interface {
	Status(ctx context.Context) (identity.Status, error)
	Initialize(ctx context.Context) (hubclient.InitResult, error)
	UpdateRecovery(ctx context.Context, r hubclient.Recovery) error
	ExportClone(ctx context.Context) (string, error)
}

type Dispatcher interface {
	Route(ctx context.Context, raw string) router.Result
}

type Config struct {
	Addr    string
	Token   string
	Router  Dispatcher
	Windows *notify.Handler
	Device  Device
	// Bridge is optional; without it the prompt and capability routes are absent.
	Bridge  *biometric.Bridge
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Server struct {
	httpServer *http.Server
	token      string
	router     Dispatcher
	windows    *notify.Handler
	device     Device
	bridge     *biometric.Bridge
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Router == nil:
		return nil, ErrRouterRequired
	case cfg.Windows == nil:
		return nil, ErrWindowsRequired
	case cfg.Device == nil:
		return nil, ErrDeviceRequired
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		token:   strings.TrimSpace(cfg.Token),
		router:  cfg.Router,
		windows: cfg.Windows,
		device:  cfg.Device,
		bridge:  cfg.Bridge,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if s.token == "" {
		s.logger.Warn("api token is not set; local API auth disabled")
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Routes builds the chi router. Exposed for tests and embedding.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/qr", s.handleQR)
		r.Post("/push", s.handlePush)
		r.Get("/windows/{id}", s.handleGetWindow)
		r.Post("/windows/{id}/allow", s.handleAllow)
		r.Post("/windows/{id}/decline", s.handleDecline)
		r.Get("/identity/status", s.handleStatus)
		r.Post("/identity/initialize", s.handleInitialize)
		r.Put("/recovery", s.handleRecovery)
		r.Get("/clone", s.handleClone)
		if s.bridge != nil {
			r.Put("/capability", s.handleCapability)
			r.Get("/prompts", s.handlePrompts)
			r.Post("/prompts/{id}", s.handleResolvePrompt)
		}
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()
	s.logger.Info("local api listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimSpace(r.Header.Get(HeaderToken))
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid api token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
