package biometric

import (
	"fmt"
	"strings"
)

// Capability is the single classification produced by probing the platform.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityDevicePasscodeOnly
	// CapabilityWeakBiometric covers face-unlock class sensors.
	CapabilityWeakBiometric
	// CapabilityStrongBiometric is a hardware-backed fingerprint/TouchID sensor
	// with a dedicated secure key store.
	CapabilityStrongBiometric
)

func (c Capability) String() string {
	switch c {
	case CapabilityDevicePasscodeOnly:
		return "device_passcode_only"
	case CapabilityWeakBiometric:
		return "weak_biometric"
	case CapabilityStrongBiometric:
		return "strong_biometric"
	default:
		return "none"
	}
}

// Biometric reports whether the capability includes a biometric sensor, which
// always comes with an enrolled set.
func (c Capability) Biometric() bool {
	return c == CapabilityStrongBiometric || c == CapabilityWeakBiometric
}

func ParseCapability(raw string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "":
		return CapabilityNone, nil
	case "device_passcode_only", "passcode":
		return CapabilityDevicePasscodeOnly, nil
	case "weak_biometric", "face":
		return CapabilityWeakBiometric, nil
	case "strong_biometric", "fingerprint", "touch_id":
		return CapabilityStrongBiometric, nil
	default:
		return CapabilityNone, fmt.Errorf("unknown capability %q", raw)
	}
}

// Factor is the authentication factor a decision was made with.
type Factor int

const (
	FactorDenied Factor = iota
	FactorStrongBiometric
	FactorWeakBiometric
	FactorDevicePasscode
)

func (f Factor) String() string {
	switch f {
	case FactorStrongBiometric:
		return "strong_biometric"
	case FactorWeakBiometric:
		return "weak_biometric"
	case FactorDevicePasscode:
		return "device_passcode"
	default:
		return "denied"
	}
}

func (f Factor) Biometric() bool {
	return f == FactorStrongBiometric || f == FactorWeakBiometric
}

type Policy int

const (
	// PolicyStrongOnly accepts nothing but a strong biometric.
	PolicyStrongOnly Policy = iota
	// PolicyPermissive falls back from strong biometric to device passcode.
	PolicyPermissive
)

func (p Policy) String() string {
	if p == PolicyPermissive {
		return "permissive"
	}
	return "strong-only"
}

func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strong-only", "strong_only", "strong":
		return PolicyStrongOnly, nil
	case "permissive":
		return PolicyPermissive, nil
	default:
		return PolicyStrongOnly, fmt.Errorf("unknown biometric policy %q", raw)
	}
}

// fallbackOrder lists the factors each policy may use, most preferred first.
// Face-class biometrics appear in no row.
var fallbackOrder = map[Policy][]Factor{
	PolicyStrongOnly: {FactorStrongBiometric},
	PolicyPermissive: {FactorStrongBiometric, FactorDevicePasscode},
}

// offered maps a capability to the factors the device can present. A device
// with a face sensor still has a passcode.
var offered = map[Capability][]Factor{
	CapabilityNone:               nil,
	CapabilityDevicePasscodeOnly: {FactorDevicePasscode},
	CapabilityWeakBiometric:      {FactorWeakBiometric, FactorDevicePasscode},
	CapabilityStrongBiometric:    {FactorStrongBiometric, FactorDevicePasscode},
}

// Eligibility picks the factor to prompt with, or reports the device ineligible.
func Eligibility(policy Policy, capability Capability) (Factor, bool) {
	available := offered[capability]
	for _, want := range fallbackOrder[policy] {
		for _, have := range available {
			if have == want {
				return want, true
			}
		}
	}
	return FactorDenied, false
}
