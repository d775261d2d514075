// Package notify turns a push trigger into a short authorization window that
// the user allows or declines before the carried payload is routed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/platform/metrics"
	"zerointrusion/vault-client/internal/router"
	"zerointrusion/vault-client/pkg/models"
)

const (
	DefaultWindow = 10 * time.Second
	retainClosed  = time.Minute
)

var (
	ErrUnsupportedAction = errors.New("unsupported push action")
	ErrWindowNotFound    = errors.New("authorization window not found")
	ErrWindowClosed      = errors.New("authorization window already resolved")
	ErrGateRequired      = errors.New("authorizer is required")
	ErrRouterRequired    = errors.New("dispatcher is required")
)

type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeDeclined Outcome = "declined"
	OutcomeExpired  Outcome = "expired"
)

// Stopper is the handle of a scheduled expiry.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests replace it to drive expiry by hand.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type Authorizer interface {
	Authorize(ctx context.Context, class biometric.OperationClass) biometric.Decision
}

type Dispatcher interface {
	Route(ctx context.Context, raw string) router.Result
}

// Window is one pending push authorization. open is the single owning flag:
// whichever of allow, decline or expiry clears it first resolves the window
// and the others become no-ops.
type Window struct {
	id        string
	qrData    string
	expiresAt time.Time
	open      atomic.Bool

	mu         sync.Mutex
	timer      Stopper
	outcome    Outcome
	decision   biometric.Decision
	result     *router.Result
	resolvedAt time.Time
	done       chan struct{}
}

func (w *Window) ID() string {
	return w.id
}

// ControlsEnabled reports whether allow/decline may still act.
func (w *Window) ControlsEnabled() bool {
	return w.open.Load()
}

// Done is closed once the window reaches a terminal outcome.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

func (w *Window) Decision() biometric.Decision {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.decision
}

func (w *Window) claim() bool {
	if !w.open.CompareAndSwap(true, false) {
		return false
	}
	w.mu.Lock()
	t := w.timer
	w.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	return true
}

func (w *Window) finish(outcome Outcome, d biometric.Decision, res *router.Result, at time.Time) {
	w.mu.Lock()
	w.outcome = outcome
	w.decision = d
	w.result = res
	w.resolvedAt = at
	w.mu.Unlock()
	close(w.done)
}

// View is the shell-facing snapshot of a window.
type View struct {
	ID              string         `json:"id"`
	Outcome         Outcome        `json:"outcome"`
	ControlsEnabled bool           `json:"controls_enabled"`
	ExpiresAt       time.Time      `json:"expires_at"`
	Reason          string         `json:"reason,omitempty"`
	Result          *router.Result `json:"result,omitempty"`
}

func (w *Window) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return View{
		ID:              w.id,
		Outcome:         w.outcome,
		ControlsEnabled: w.open.Load(),
		ExpiresAt:       w.expiresAt,
		Reason:          w.decision.Reason,
		Result:          w.result,
	}
}

type Handler struct {
	gate     Authorizer
	dispatch Dispatcher
	window   time.Duration
	after    AfterFunc
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	windows map[string]*Window
}

type Option func(*Handler)

func WithWindow(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.window = d
		}
	}
}

func WithAfterFunc(f AfterFunc) Option {
	return func(h *Handler) { h.after = f }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(gate Authorizer, dispatch Dispatcher, opts ...Option) (*Handler, error) {
	if gate == nil {
		return nil, ErrGateRequired
	}
	if dispatch == nil {
		return nil, ErrRouterRequired
	}
	h := &Handler{
		gate:     gate,
		dispatch: dispatch,
		window:   DefaultWindow,
		after:    realAfterFunc,
		now:      time.Now,
		windows:  make(map[string]*Window),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// ParsePush decodes the notification channel payload.
func ParsePush(raw []byte) (models.PushPayload, error) {
	var p models.PushPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, faults.Malformed("push payload", err)
	}
	return p, nil
}

// Receive opens a window for a push payload. Nothing is routed until the
// window is allowed and the gate grants.
func (h *Handler) Receive(p models.PushPayload) (*Window, error) {
	if p.Action != models.ActionShowAllowClose {
		h.logger.Info("push ignored", "action", p.Action)
		return nil, ErrUnsupportedAction
	}
	if strings.TrimSpace(p.QRData) == "" {
		return nil, faults.Malformed("push payload has no qrData", nil)
	}
	now := h.now()
	w := &Window{
		id:        uuid.NewString(),
		qrData:    p.QRData,
		expiresAt: now.Add(h.window),
		outcome:   OutcomePending,
		done:      make(chan struct{}),
	}
	w.open.Store(true)

	h.mu.Lock()
	h.pruneLocked(now)
	h.windows[w.id] = w
	h.mu.Unlock()

	w.mu.Lock()
	w.timer = h.after(h.window, func() { h.expire(w) })
	w.mu.Unlock()
	h.metrics.ObserveWindow(string(OutcomePending))
	h.logger.Info("authorization window opened", "window_id", w.id, "expires_in", h.window.String())
	return w, nil
}

func (h *Handler) Get(id string) (*Window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[id]
	return w, ok
}

func (h *Handler) lookup(id string) (*Window, error) {
	w, ok := h.Get(id)
	if !ok {
		return nil, ErrWindowNotFound
	}
	return w, nil
}

// Allow resolves the window in the user's favour, runs the gate and routes
// the payload under the granted decision. After expiry or decline it does
// nothing and returns ErrWindowClosed.
func (h *Handler) Allow(ctx context.Context, id string) (View, error) {
	w, err := h.lookup(id)
	if err != nil {
		return View{}, err
	}
	if !w.claim() {
		return w.View(), ErrWindowClosed
	}
	d := h.gate.Authorize(ctx, biometric.ClassNotification)
	if !d.Granted {
		h.close(w, OutcomeDenied, d, nil)
		return w.View(), d.Err()
	}
	res := h.dispatch.Route(biometric.WithDecision(ctx, d), w.qrData)
	h.close(w, OutcomeAllowed, d, &res)
	return w.View(), nil
}

func (h *Handler) Decline(id string) (View, error) {
	w, err := h.lookup(id)
	if err != nil {
		return View{}, err
	}
	if !w.claim() {
		return w.View(), ErrWindowClosed
	}
	h.close(w, OutcomeDeclined, biometric.Denied("declined"), nil)
	return w.View(), nil
}

func (h *Handler) expire(w *Window) {
	if !w.claim() {
		return
	}
	h.close(w, OutcomeExpired, biometric.Denied(biometric.ReasonExpired), nil)
}

func (h *Handler) close(w *Window, outcome Outcome, d biometric.Decision, res *router.Result) {
	w.finish(outcome, d, res, h.now())
	h.metrics.ObserveWindow(string(outcome))
	h.logger.Info("authorization window closed", "window_id", w.id, "outcome", string(outcome), "reason", d.Reason)
}

func (h *Handler) pruneLocked(now time.Time) {
	for id, w := range h.windows {
		if w.open.Load() {
			continue
		}
		w.mu.Lock()
		stale := !w.resolvedAt.IsZero() && now.Sub(w.resolvedAt) > retainClosed
		w.mu.Unlock()
		if stale {
			delete(h.windows, id)
		}
	}
}
