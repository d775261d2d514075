package biometric

import (
	"context"

	"zerointrusion/vault-client/internal/securestore"
)

// Unlocker adapts the gate to securestore's gated reads. A decision already in
// the context is reused so one operation prompts at most once.
func (g *Gate) Unlocker() securestore.Unlocker {
	return storeUnlocker{gate: g}
}

type storeUnlocker struct {
	gate *Gate
}

func (u storeUnlocker) Unlock(ctx context.Context, policy securestore.AccessPolicy) error {
	d, ok := DecisionFrom(ctx)
	if !ok || !d.Granted {
		class := ClassSecretRead
		if !policy.RequiresBiometry() {
			class = ClassPasscodeRead
		}
		d = u.gate.Authorize(ctx, class)
	}
	if !d.Granted {
		if d.Cancelled() {
			return securestore.ErrCancelled
		}
		return securestore.ErrDenied
	}
	if policy.RequiresBiometry() && !d.Factor.Biometric() {
		return securestore.ErrDenied
	}
	return nil
}

func (u storeUnlocker) EnrollmentID(ctx context.Context) (string, error) {
	return u.gate.platform.EnrollmentID(ctx)
}
