// Package router dispatches decoded QR and notification payloads to hub
// operations by their type tag.
package router

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"zerointrusion/vault-client/internal/clone"
	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/hubclient"
	"zerointrusion/vault-client/internal/platform/metrics"
	"zerointrusion/vault-client/internal/platform/ratelimiter"
	"zerointrusion/vault-client/pkg/models"
)

// Route names.
const (
	RouteSystemHubRegistration = "systemHubRegistration"
	RouteSystemHubLogin        = "systemHubLogin"
	RouteSharedRegistration    = "sharedRegistration"
	RouteAccess                = "access"
	RouteDelete                = "delete"
	RouteClone                 = "clone"
	RouteRegisterDevice        = "registerDevice"
)

// aliases maps normalized payload types onto routes.
var aliases = map[string]string{
	"systemHubRegistration":    RouteSystemHubRegistration,
	"systemHubLogin":           RouteSystemHubLogin,
	"sharedRegistration":       RouteSharedRegistration,
	"registrationDomain":       RouteSharedRegistration,
	"registrationApplication":  RouteSharedRegistration,
	"registrationApplications": RouteSharedRegistration,
	"updateApplications":       RouteSharedRegistration,
	"access":                   RouteAccess,
	"domainLogin":              RouteAccess,
	"applicationList":          RouteAccess,
	"listApplications":         RouteAccess,
	"delete":                   RouteDelete,
	"deleteDomain":             RouteDelete,
	"deleteApplication":        RouteDelete,
	"deleteApplications":       RouteDelete,
	"clone":                    RouteClone,
	"registerDevice":           RouteRegisterDevice,
}

type Status string

const (
	StatusHandled Status = "handled"
	StatusIgnored Status = "ignored"
	StatusFailed  Status = "failed"
)

// Reasons attached to ignored results.
const (
	ReasonEmpty       = "empty"
	ReasonMalformed   = "malformed"
	ReasonUnknownType = "unknown_type"
	ReasonDuplicate   = "duplicate"
)

// Result is what a routed payload produced. Errors never escape Route; they
// are carried in Err with Status failed.
type Result struct {
	Status    Status `json:"status"`
	Operation string `json:"operation,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Detail    any    `json:"detail,omitempty"`
	Err       error  `json:"-"`
}

// Ignored is the sentinel for input that was deliberately not processed.
var Ignored = Result{Status: StatusIgnored}

func (r Result) IsIgnored() bool {
	return r.Status == StatusIgnored
}

func (r Result) Kind() faults.Kind {
	return faults.KindOf(r.Err)
}

// Request is one decoded payload.
type Request struct {
	Raw     string
	Payload models.Payload
}

type Handler func(ctx context.Context, req Request) (any, error)

// Operations is the hub client surface the routes bind to.
type Operations interface {
	Initialize(ctx context.Context) (hubclient.InitResult, error)
	SystemHubRegistration(ctx context.Context, p models.Payload) error
	SystemHubLogin(ctx context.Context, p models.Payload) error
	SharedRegistration(ctx context.Context, p models.Payload) error
	Access(ctx context.Context, p models.Payload) (hubclient.AccessResult, error)
	Delete(ctx context.Context, p models.Payload) error
	ImportClone(ctx context.Context, raw string) (clone.Trust, error)
}

// Bind builds the dispatch table over ops.
func Bind(ops Operations) map[string]Handler {
	payloadOnly := func(fn func(context.Context, models.Payload) error) Handler {
		return func(ctx context.Context, req Request) (any, error) {
			return nil, fn(ctx, req.Payload)
		}
	}
	return map[string]Handler{
		RouteSystemHubRegistration: payloadOnly(ops.SystemHubRegistration),
		RouteSystemHubLogin:        payloadOnly(ops.SystemHubLogin),
		RouteSharedRegistration:    payloadOnly(ops.SharedRegistration),
		RouteDelete:                payloadOnly(ops.Delete),
		RouteAccess: func(ctx context.Context, req Request) (any, error) {
			res, err := ops.Access(ctx, req.Payload)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
		RouteClone: func(ctx context.Context, req Request) (any, error) {
			trust, err := ops.ImportClone(ctx, req.Raw)
			if err != nil {
				return nil, err
			}
			return map[string]string{"publicId": trust.PublicID}, nil
		},
		// A registration scan only bootstraps a device that has no identity yet.
		RouteRegisterDevice: func(ctx context.Context, _ Request) (any, error) {
			res, err := ops.Initialize(ctx)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
	}
}

type Router struct {
	routes  map[string]Handler
	limiter *ratelimiter.MapLimiter
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithDuplicateWindow drops a byte-identical payload seen again within d,
// as produced by a camera holding on the same QR code.
func WithDuplicateWindow(d time.Duration) Option {
	return func(r *Router) {
		r.limiter = nil
		if d > 0 {
			r.limiter = ratelimiter.New(1/d.Seconds(), 1, 0)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func New(routes map[string]Handler, opts ...Option) *Router {
	r := &Router{routes: routes, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve maps a raw type tag onto a bound route.
func (r *Router) Resolve(rawType string) (string, bool) {
	route, ok := aliases[models.NormalizeType(rawType)]
	if !ok {
		return "", false
	}
	if _, bound := r.routes[route]; !bound {
		return "", false
	}
	return route, true
}

// Route parses raw and runs the matching operation. Empty, unparsable,
// unknown and duplicate input returns an ignored result without touching
// the network.
func (r *Router) Route(ctx context.Context, raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return r.ignore("", ReasonEmpty)
	}
	p, err := models.ParsePayload(raw)
	if err != nil {
		r.logger.Info("payload ignored", "reason", ReasonMalformed, "error", err)
		return r.ignore("", ReasonMalformed)
	}
	route, ok := r.Resolve(p.Type())
	if !ok {
		r.logger.Info("payload ignored", "reason", ReasonUnknownType, "type", p.Type())
		return r.ignore("", ReasonUnknownType)
	}
	key := fingerprint(raw)
	if !r.limiter.Allow(key, r.now()) {
		r.logger.Info("payload ignored", "reason", ReasonDuplicate, "route", route)
		return r.ignore(route, ReasonDuplicate)
	}

	detail, err := r.routes[route](ctx, Request{Raw: raw, Payload: p})
	if err != nil {
		r.limiter.Forget(key)
		kind := faults.KindOf(err)
		r.logger.Warn("payload operation failed", "route", route, "kind", kind.String(), "error", err)
		r.metrics.ObserveDispatch(route, string(StatusFailed))
		return Result{Status: StatusFailed, Operation: route, Reason: kind.String(), Err: err}
	}
	r.metrics.ObserveDispatch(route, string(StatusHandled))
	return Result{Status: StatusHandled, Operation: route, Detail: detail}
}

func (r *Router) ignore(route, reason string) Result {
	label := route
	if label == "" {
		label = "none"
	}
	r.metrics.ObserveDispatch(label, string(StatusIgnored))
	res := Ignored
	res.Operation = route
	res.Reason = reason
	return res
}

func fingerprint(raw string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:16])
}
