package biometric_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/biometric/mocks"
	"zerointrusion/vault-client/internal/faults"
	"zerointrusion/vault-client/internal/securestore"
)

func newGate(t *testing.T, capability biometric.Capability, opts ...biometric.Option) (*biometric.Gate, *mocks.MockPlatform) {
	t.Helper()
	ctrl := gomock.NewController(t)
	platform := mocks.NewMockPlatform(ctrl)
	platform.EXPECT().Capability(gomock.Any()).Return(capability, nil).AnyTimes()
	gate, err := biometric.NewGate(platform, opts...)
	require.NoError(t, err)
	return gate, platform
}

func TestStrongBiometricIsGranted(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityStrongBiometric)
	platform.EXPECT().
		Prompt(gomock.Any(), biometric.PromptRequest{Class: biometric.ClassIdentity, Factor: biometric.FactorStrongBiometric}).
		Return(biometric.PromptSucceeded, nil).
		Times(1)

	_, factor, eligible, err := gate.Evaluate(context.Background())
	require.NoError(t, err)
	assert.True(t, eligible)
	assert.Equal(t, biometric.FactorStrongBiometric, factor)

	d := gate.Authorize(context.Background(), biometric.ClassIdentity)
	assert.True(t, d.Granted)
	assert.Equal(t, biometric.FactorStrongBiometric, d.Factor)
	assert.NoError(t, d.Err())
	assert.Equal(t, biometric.StateGranted, gate.State())
}

func TestWeakBiometricNeverGrantedUnderStrongOnly(t *testing.T) {
	gate, _ := newGate(t, biometric.CapabilityWeakBiometric)

	for i := 0; i < 3; i++ {
		d := gate.Authorize(context.Background(), biometric.ClassIdentity)
		assert.False(t, d.Granted)
		assert.Equal(t, biometric.ReasonIneligible, d.Reason)
		assert.ErrorIs(t, d.Err(), faults.ErrAuthDenied)
	}
	assert.Equal(t, biometric.StateIneligible, gate.State())
}

func TestPermissivePolicyFallsBackToPasscode(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityWeakBiometric, biometric.WithPolicy(biometric.PolicyPermissive))
	platform.EXPECT().
		Prompt(gomock.Any(), biometric.PromptRequest{Class: biometric.ClassPasscodeRead, Factor: biometric.FactorDevicePasscode}).
		Return(biometric.PromptSucceeded, nil)

	d := gate.Authorize(context.Background(), biometric.ClassPasscodeRead)
	assert.True(t, d.Granted)
	assert.Equal(t, biometric.FactorDevicePasscode, d.Factor)
}

func TestPasscodeFallbackNeverPromptsForIdentity(t *testing.T) {
	// No Prompt expectation: any prompt fails the mock controller.
	gate, _ := newGate(t, biometric.CapabilityDevicePasscodeOnly, biometric.WithPolicy(biometric.PolicyPermissive))

	for _, class := range []biometric.OperationClass{
		biometric.ClassIdentity,
		biometric.ClassCloneExport,
		biometric.ClassNotification,
		biometric.ClassSecretRead,
	} {
		d := gate.Authorize(context.Background(), class)
		assert.False(t, d.Granted, class)
		assert.Equal(t, biometric.ReasonIneligible, d.Reason, class)
	}
	assert.Equal(t, biometric.StateIneligible, gate.State())
}

func TestUnlockerUsesPasscodeClassForPasscodeEntries(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityDevicePasscodeOnly, biometric.WithPolicy(biometric.PolicyPermissive))
	platform.EXPECT().
		Prompt(gomock.Any(), biometric.PromptRequest{Class: biometric.ClassPasscodeRead, Factor: biometric.FactorDevicePasscode}).
		Return(biometric.PromptSucceeded, nil)

	unlocker := gate.Unlocker()
	assert.NoError(t, unlocker.Unlock(context.Background(), securestore.PolicyDevicePasscodeOrBiometry))
	assert.ErrorIs(t, unlocker.Unlock(context.Background(), securestore.PolicyBiometryCurrentSet), securestore.ErrDenied)
}

func TestCancelledIsDistinctFromDenied(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityStrongBiometric)
	gomock.InOrder(
		platform.EXPECT().Prompt(gomock.Any(), gomock.Any()).Return(biometric.PromptCancelled, nil),
		platform.EXPECT().Prompt(gomock.Any(), gomock.Any()).Return(biometric.PromptRejected, nil),
	)

	cancelled := gate.Authorize(context.Background(), biometric.ClassIdentity)
	assert.True(t, cancelled.Cancelled())
	assert.ErrorIs(t, cancelled.Err(), faults.ErrAuthCancelled)
	assert.Equal(t, biometric.StateCancelled, gate.State())

	rejected := gate.Authorize(context.Background(), biometric.ClassIdentity)
	assert.False(t, rejected.Cancelled())
	assert.Equal(t, biometric.ReasonRejected, rejected.Reason)
	assert.ErrorIs(t, rejected.Err(), faults.ErrAuthDenied)
	assert.Equal(t, biometric.StateDenied, gate.State())
}

func TestPlatformErrorIsDenied(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityStrongBiometric)
	platform.EXPECT().Prompt(gomock.Any(), gomock.Any()).Return(biometric.PromptRejected, errors.New("sensor fault"))

	d := gate.Authorize(context.Background(), biometric.ClassIdentity)
	assert.Equal(t, biometric.ReasonPlatformError, d.Reason)
}

func TestSecondAuthorizeWhileAuthenticatingIsRejected(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityStrongBiometric)
	started := make(chan struct{})
	release := make(chan struct{})
	platform.EXPECT().Prompt(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, biometric.PromptRequest) (biometric.PromptResult, error) {
			close(started)
			<-release
			return biometric.PromptSucceeded, nil
		}).
		Times(1)

	var wg sync.WaitGroup
	var first biometric.Decision
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = gate.Authorize(context.Background(), biometric.ClassIdentity)
	}()
	<-started
	assert.Equal(t, biometric.StateAuthenticating, gate.State())

	done := make(chan biometric.Decision, 1)
	go func() { done <- gate.Authorize(context.Background(), biometric.ClassIdentity) }()
	select {
	case second := <-done:
		assert.False(t, second.Granted)
		assert.Equal(t, biometric.ReasonInProgress, second.Reason)
	case <-time.After(time.Second):
		t.Fatal("second authorize blocked instead of being rejected")
	}

	close(release)
	wg.Wait()
	assert.True(t, first.Granted)
}

func TestUnlockerReusesDecisionFromContext(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityStrongBiometric)
	platform.EXPECT().EnrollmentID(gomock.Any()).Return("set-1", nil).AnyTimes()
	unlocker := gate.Unlocker()

	granted := biometric.WithDecision(context.Background(), biometric.Decision{Granted: true, Factor: biometric.FactorStrongBiometric})
	assert.NoError(t, unlocker.Unlock(granted, securestore.PolicyBiometryCurrentSet))

	passcode := biometric.WithDecision(context.Background(), biometric.Decision{Granted: true, Factor: biometric.FactorDevicePasscode})
	assert.ErrorIs(t, unlocker.Unlock(passcode, securestore.PolicyBiometryAny), securestore.ErrDenied)
	assert.NoError(t, unlocker.Unlock(passcode, securestore.PolicyDevicePasscodeOrBiometry))

	id, err := unlocker.EnrollmentID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "set-1", id)
}

func TestUnlockerPromptsWithoutDecision(t *testing.T) {
	gate, platform := newGate(t, biometric.CapabilityStrongBiometric)
	platform.EXPECT().Prompt(gomock.Any(), biometric.PromptRequest{Class: biometric.ClassSecretRead, Factor: biometric.FactorStrongBiometric}).
		Return(biometric.PromptCancelled, nil)

	err := gate.Unlocker().Unlock(context.Background(), securestore.PolicyBiometryAny)
	assert.ErrorIs(t, err, securestore.ErrCancelled)
	assert.ErrorIs(t, err, faults.ErrAuthCancelled)
}
