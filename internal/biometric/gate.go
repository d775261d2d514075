// Package biometric decides whether an identity-bearing operation may proceed
// and with which authentication factor.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/platform/metrics"
)

//go:generate mockgen -destination=mocks/platform_mock.go -package=mocks . Platform

type State int

const (
	StateUnknown State = iota
	StateProbing
	StateEligible
	StateIneligible
	StateAuthenticating
	StateGranted
	StateDenied
	StateCancelled
)

func (s State) String() string {
	return [...]string{"unknown", "probing", "eligible", "ineligible", "authenticating", "granted", "denied", "cancelled"}[s]
}

// Decision reasons.
const (
	ReasonInProgress    = "in_progress"
	ReasonIneligible    = "ineligible"
	ReasonCancelled     = "cancelled"
	ReasonRejected      = "rejected"
	ReasonExpired       = "expired"
	ReasonProbeFailed   = "probe_failed"
	ReasonPlatformError = "platform_error"
)

// Decision is the transient outcome of one authorization. It is never persisted.
type Decision struct {
	Granted bool
	Factor  Factor
	Reason  string
}

func Denied(reason string) Decision {
	return Decision{Factor: FactorDenied, Reason: reason}
}

// Cancelled reports a platform cancellation, which callers may re-prompt for.
func (d Decision) Cancelled() bool {
	return !d.Granted && d.Reason == ReasonCancelled
}

// Err maps a refused decision onto the fault taxonomy; nil when granted.
func (d Decision) Err() error {
	switch {
	case d.Granted:
		return nil
	case d.Reason == ReasonCancelled:
		return faults.ErrAuthCancelled
	case d.Reason == ReasonExpired:
		return faults.ErrAuthExpired
	default:
		return fmt.Errorf("%w: %s", faults.ErrAuthDenied, d.Reason)
	}
}

type PromptResult int

const (
	PromptSucceeded PromptResult = iota
	PromptCancelled
	// PromptRejected means the platform refused the credential, e.g. retries exhausted.
	PromptRejected
)

// OperationClass names what a prompt is protecting; it is shown to the user.
type OperationClass string

const (
	ClassIdentity     OperationClass = "identity"
	ClassCloneExport  OperationClass = "clone_export"
	ClassSecretRead   OperationClass = "secret_read"
	ClassNotification OperationClass = "notification"
	// ClassPasscodeRead unlocks entries stored under devicePasscodeOrBiometry.
	ClassPasscodeRead OperationClass = "passcode_read"
)

// RequiresBiometry reports whether the class releases biometryCurrentSet
// entries (privateId, secret), which no passcode can unlock. Such classes
// are ineligible rather than prompted when only a passcode is available.
func (c OperationClass) RequiresBiometry() bool {
	return c != ClassPasscodeRead
}

type PromptRequest struct {
	Class  OperationClass
	Factor Factor
}

// Platform is the device authentication surface.
type Platform interface {
	Capability(ctx context.Context) (Capability, error)
	// Prompt shows the platform authentication UI once and blocks until it resolves.
	Prompt(ctx context.Context, req PromptRequest) (PromptResult, error)
	// EnrollmentID changes whenever the enrolled biometric set changes.
	EnrollmentID(ctx context.Context) (string, error)
}

var ErrPlatformRequired = errors.New("biometric platform is required")

// Gate runs the probe → eligibility → prompt state machine. Only one
// authorization may be outstanding at a time; a second one is refused, not queued.
type Gate struct {
	platform Platform
	policy   Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics

	busy   atomic.Bool
	probes singleflight.Group

	mu    sync.Mutex
	state State
}

type Option func(*Gate)

func WithPolicy(p Policy) Option {
	return func(g *Gate) { g.policy = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(platform Platform, opts ...Option) (*Gate, error) {
	if platform == nil {
		return nil, ErrPlatformRequired
	}
	g := &Gate{platform: platform, policy: PolicyStrongOnly}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

func (g *Gate) Policy() Policy {
	return g.policy
}

// State is the state of the most recent authorization.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Probe classifies the platform. Concurrent probes share one platform query.
func (g *Gate) Probe(ctx context.Context) (Capability, error) {
	v, err, _ := g.probes.Do("capability", func() (any, error) {
		return g.platform.Capability(ctx)
	})
	if err != nil {
		return CapabilityNone, err
	}
	return v.(Capability), nil
}

// Evaluate probes and applies the policy without prompting.
func (g *Gate) Evaluate(ctx context.Context) (Capability, Factor, bool, error) {
	capability, err := g.Probe(ctx)
	if err != nil {
		return CapabilityNone, FactorDenied, false, err
	}
	factor, ok := Eligibility(g.policy, capability)
	return capability, factor, ok, nil
}

// Authorize prompts once and blocks until the platform resolves.
func (g *Gate) Authorize(ctx context.Context, class OperationClass) Decision {
	if !g.busy.CompareAndSwap(false, true) {
		d := Denied(ReasonInProgress)
		g.record(class, d)
		return d
	}
	defer g.busy.Store(false)

	d := g.authorize(ctx, class)
	g.record(class, d)
	return d
}

func (g *Gate) authorize(ctx context.Context, class OperationClass) Decision {
	g.setState(StateProbing)
	capability, err := g.Probe(ctx)
	if err != nil {
		g.logger.Warn("biometric probe failed", "class", string(class), "error", err)
		g.setState(StateIneligible)
		return Denied(ReasonProbeFailed)
	}
	factor, ok := Eligibility(g.policy, capability)
	if !ok || (class.RequiresBiometry() && !factor.Biometric()) {
		g.setState(StateIneligible)
		return Denied(ReasonIneligible)
	}
	g.setState(StateEligible)

	g.setState(StateAuthenticating)
	result, err := g.platform.Prompt(ctx, PromptRequest{Class: class, Factor: factor})
	switch {
	case ctx.Err() != nil:
		g.setState(StateCancelled)
		return Denied(ReasonCancelled)
	case err != nil:
		g.logger.Warn("biometric prompt failed", "class", string(class), "error", err)
		g.setState(StateDenied)
		return Denied(ReasonPlatformError)
	}
	switch result {
	case PromptSucceeded:
		g.setState(StateGranted)
		return Decision{Granted: true, Factor: factor}
	case PromptCancelled:
		g.setState(StateCancelled)
		return Denied(ReasonCancelled)
	default:
		g.setState(StateDenied)
		return Denied(ReasonRejected)
	}
}

func (g *Gate) record(class OperationClass, d Decision) {
	g.metrics.ObserveGateDecision(d.Factor.String(), d.Granted, d.Reason)
	if d.Granted {
		g.logger.Info("biometric authorization granted", "class", string(class), "factor", d.Factor.String())
		return
	}
	g.logger.Info("biometric authorization refused", "class", string(class), "reason", d.Reason)
}

type decisionKey struct{}

// WithDecision carries a decision to gated secret reads further down the call.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

func DecisionFrom(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}
