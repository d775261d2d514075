// Package securestore persists named device secrets behind per-entry access
// policies. Reads under a biometric policy block until the platform prompt
// resolves; a cancelled prompt is an ordinary failed read.
package securestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"zerointrusion/vault-client/internal/faults"
)

var (
	ErrNameRequired = errors.New("secret name is required")
	ErrCancelled    = fmt.Errorf("secret read cancelled: %w", faults.ErrAuthCancelled)
	ErrDenied       = fmt.Errorf("secret read denied: %w", faults.ErrAuthDenied)
	// ErrInvalidated is returned once for a biometryCurrentSet entry whose
	// enrolled biometric set changed since it was written; the entry is gone.
	ErrInvalidated = errors.New("secret invalidated by biometric enrollment change")
	// ErrEnrollmentUnknown refuses biometryCurrentSet writes and checks until
	// the platform has reported its enrolled set.
	ErrEnrollmentUnknown = fmt.Errorf("biometric enrollment is unknown: %w", faults.ErrAuthDenied)
)

type AccessPolicy int

const (
	PolicyNone AccessPolicy = iota
	PolicyBiometryAny
	PolicyBiometryCurrentSet
	PolicyDevicePasscodeOrBiometry
)

func (p AccessPolicy) String() string {
	switch p {
	case PolicyBiometryAny:
		return "biometryAny"
	case PolicyBiometryCurrentSet:
		return "biometryCurrentSet"
	case PolicyDevicePasscodeOrBiometry:
		return "devicePasscodeOrBiometry"
	default:
		return "none"
	}
}

// RequiresBiometry reports whether only a biometric factor may unlock the entry.
func (p AccessPolicy) RequiresBiometry() bool {
	return p == PolicyBiometryAny || p == PolicyBiometryCurrentSet
}

// Store is the contract the rest of the core depends on.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, bool, error)
	Set(ctx context.Context, name string, value []byte, policy AccessPolicy) error
	Exists(ctx context.Context, name string) (bool, error)
}

type Entry struct {
	Name   string
	Value  []byte
	Policy AccessPolicy
}

// BatchStore writes several entries all-or-nothing.
type BatchStore interface {
	Store
	SetBatch(ctx context.Context, entries []Entry) error
}

// Unlocker satisfies the platform side of gated reads.
type Unlocker interface {
	// Unlock blocks until the platform authentication for policy resolves.
	Unlock(ctx context.Context, policy AccessPolicy) error
	// EnrollmentID identifies the currently enrolled biometric set.
	EnrollmentID(ctx context.Context) (string, error)
}

// Record is one persisted secret with the policy it was written under.
type Record struct {
	Value      []byte       `json:"value"`
	Policy     AccessPolicy `json:"policy"`
	Enrollment string       `json:"enrollment,omitempty"`
}

// Backend is raw Record persistence; Save and Delete of several records are
// each atomic.
type Backend interface {
	Load(name string) (Record, bool, error)
	Names() ([]string, error)
	Save(records map[string]Record) error
	Delete(names ...string) error
}

// Vault is a Store over a Backend with policy-gated reads.
type Vault struct {
	backend  Backend
	unlocker Unlocker
	mu       sync.Mutex
}

func NewVault(backend Backend, unlocker Unlocker) *Vault {
	return &Vault{backend: backend, unlocker: unlocker}
}

func (v *Vault) Get(ctx context.Context, name string) ([]byte, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, ErrNameRequired
	}
	rec, ok, err := v.backend.Load(name)
	if err != nil || !ok {
		return nil, false, err
	}
	if rec.Policy == PolicyNone {
		return append([]byte(nil), rec.Value...), true, nil
	}
	if v.unlocker == nil {
		return nil, false, ErrDenied
	}
	if err := v.unlocker.Unlock(ctx, rec.Policy); err != nil {
		return nil, false, err
	}
	if rec.Policy == PolicyBiometryCurrentSet {
		current, err := v.enrollment(ctx)
		if err != nil {
			return nil, false, err
		}
		if current != rec.Enrollment {
			if err := v.invalidate(current); err != nil {
				return nil, false, err
			}
			return nil, false, ErrInvalidated
		}
	}
	return append([]byte(nil), rec.Value...), true, nil
}

// enrollment returns the platform's current enrolled set; an empty one is
// never accepted as a fingerprint.
func (v *Vault) enrollment(ctx context.Context) (string, error) {
	id, err := v.unlocker.EnrollmentID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEnrollmentUnknown, err)
	}
	if strings.TrimSpace(id) == "" {
		return "", ErrEnrollmentUnknown
	}
	return id, nil
}

// invalidate removes every biometryCurrentSet record written under a
// different enrolled set in one backend write.
func (v *Vault) invalidate(current string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	names, err := v.backend.Names()
	if err != nil {
		return err
	}
	var stale []string
	for _, n := range names {
		rec, ok, err := v.backend.Load(n)
		if err != nil {
			return err
		}
		if ok && rec.Policy == PolicyBiometryCurrentSet && rec.Enrollment != current {
			stale = append(stale, n)
		}
	}
	return v.backend.Delete(stale...)
}

func (v *Vault) Set(ctx context.Context, name string, value []byte, policy AccessPolicy) error {
	return v.SetBatch(ctx, []Entry{{Name: name, Value: value, Policy: policy}})
}

func (v *Vault) SetBatch(ctx context.Context, entries []Entry) error {
	records := make(map[string]Record, len(entries))
	var enrollment string
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return ErrNameRequired
		}
		rec := Record{Value: append([]byte(nil), e.Value...), Policy: e.Policy}
		if e.Policy == PolicyBiometryCurrentSet {
			if enrollment == "" {
				if v.unlocker == nil {
					return ErrDenied
				}
				id, err := v.enrollment(ctx)
				if err != nil {
					return err
				}
				enrollment = id
			}
			rec.Enrollment = enrollment
		}
		records[name] = rec
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.backend.Save(records)
}

// Exists never prompts.
func (v *Vault) Exists(_ context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrNameRequired
	}
	rec, ok, err := v.backend.Load(name)
	if err != nil {
		return false, err
	}
	return ok && len(rec.Value) > 0, nil
}
