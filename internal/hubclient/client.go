// Package hubclient talks to the credential hub on behalf of this device.
//
// Every identity-releasing exchange is authorized by the biometric gate,
// carries publicId in the clear and privateId sealed afresh under secret,
// and is signed with the hub-issued bearer token found in the inbound payload.
package hubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/crypto"
	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/identity"
	"zerointrusion/vault-client/internal/platform/metrics"
	"zerointrusion/vault-client/pkg/models"
)

const (
	HeaderAuth      = "X-Extension-Auth"
	HeaderRequestID = "X-Request-ID"
	authScheme      = "HMAC "

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20
)

var (
	ErrBaseURLRequired    = errors.New("hub base url is required")
	ErrRepositoryRequired = errors.New("identity repository is required")
	ErrGateRequired       = errors.New("authorizer is required")
)

// Endpoints holds per-operation path suffixes relative to the base URL.
type Endpoints struct {
	DeviceRegistration     string `yaml:"deviceRegistration"`
	RecoverySettings       string `yaml:"recoverySettings"`
	Registration           string `yaml:"registration"`
	EditApplication        string `yaml:"editApplication"`
	DomainLogin            string `yaml:"domainLogin"`
	ApplicationList        string `yaml:"applicationList"`
	DomainCredentials      string `yaml:"domainCredentials"`
	ApplicationCredentials string `yaml:"applicationCredentials"`
	DeleteDomain           string `yaml:"deleteDomain"`
	DeleteApplication      string `yaml:"deleteApplication"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		DeviceRegistration:     "/api/secret/new",
		RecoverySettings:       "/api/secret/recovery-settings",
		Registration:           "/api/credential-hub/shared/registration/new",
		EditApplication:        "/api/credential-hub/vault/edit/credential",
		DomainLogin:            "/api/credential-hub/domain/read/credential",
		ApplicationList:        "/api/credential-hub/vault/read/credential",
		DomainCredentials:      "/api/credential-hub/domain/decrypted/credential",
		ApplicationCredentials: "/api/credential-hub/vault/decrypted/credential",
		DeleteDomain:           "/api/credential-hub/domain/delete/credential",
		DeleteApplication:      "/api/credential-hub/vault/delete/credential",
	}
}

// Authorizer is the slice of the biometric gate the client needs.
type Authorizer interface {
	Authorize(ctx context.Context, class biometric.OperationClass) biometric.Decision
}

type Client struct {
	baseURL   string
	endpoints Endpoints
	http      *http.Client
	repo      *identity.Repository
	gate      Authorizer
	cipher    *crypto.Cipher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Client)

func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithCipher(ci *crypto.Cipher) Option {
	return func(c *Client) { c.cipher = ci }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func New(baseURL string, repo *identity.Repository, gate Authorizer, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if gate == nil {
		return nil, ErrGateRequired
	}
	c := &Client{
		baseURL:   baseURL,
		endpoints: DefaultEndpoints(),
		repo:      repo,
		gate:      gate,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.cipher == nil {
		c.cipher = crypto.Default()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("zerointrusion/vault-client/hubclient")
	}
	return c, nil
}

// Status reports registration progress without prompting.
func (c *Client) Status(ctx context.Context) (identity.Status, error) {
	return c.repo.Status(ctx)
}

// release authorizes an identity-bearing operation and loads the identity.
// A granted decision already in ctx (e.g. from a notification window) is
// reused instead of prompting twice.
func (c *Client) release(ctx context.Context, class biometric.OperationClass) (context.Context, identity.DeviceIdentity, error) {
	d, ok := biometric.DecisionFrom(ctx)
	if !ok || !d.Granted {
		d = c.gate.Authorize(ctx, class)
		if err := d.Err(); err != nil {
			return ctx, identity.DeviceIdentity{}, err
		}
		ctx = biometric.WithDecision(ctx, d)
	}
	id, err := c.repo.Load(ctx)
	if err != nil {
		return ctx, identity.DeviceIdentity{}, err
	}
	return ctx, id, nil
}

// signedBody is the inbound payload minus the bearer token, plus the
// device's identification.
func (c *Client) signedBody(id identity.DeviceIdentity, p models.Payload) (map[string]any, error) {
	sealed, err := c.cipher.SealString(id.PrivateID, id.Secret)
	if err != nil {
		return nil, err
	}
	body := p.Without(models.FieldAuthToken)
	body["publicId"] = id.PublicID
	body["privateId"] = sealed
	body["email"] = id.Email
	return body, nil
}

// post sends a signed JSON body and decodes a 2xx response into out when out
// is non-nil. Any transport error or non-2xx status is a *faults.NetworkError.
func (c *Client) post(ctx context.Context, operation, path, token string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode body: %w", operation, err)
	}
	return c.exchange(ctx, operation, http.MethodPost, path, authScheme+token, raw, out)
}

func (c *Client) exchange(ctx context.Context, operation, method, path, auth string, body []byte, out any) (retErr error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "hub."+operation, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("hub.operation", operation),
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("request.id", requestID),
		))
	started := time.Now()
	status := 0
	defer func() {
		outcome := "ok"
		if retErr != nil {
			outcome = faults.KindOf(retErr).String()
			span.RecordError(retErr)
			span.SetStatus(codes.Error, outcome)
			c.logger.Warn("hub request failed", "operation", operation, "request_id", requestID, "status", status, "error", retErr)
		} else {
			c.logger.Info("hub request completed", "operation", operation, "request_id", requestID, "status", status)
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		span.End()
		c.metrics.ObserveHubRequest(operation, outcome, time.Since(started))
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &faults.NetworkError{Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if auth != "" {
		req.Header.Set(HeaderAuth, auth)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &faults.NetworkError{Operation: operation, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	status = resp.StatusCode
	if status < 200 || status > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &faults.NetworkError{Operation: operation, StatusCode: status}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return faults.Malformed(operation+" response", err)
	}
	return nil
}
