package biometric

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitPending(t *testing.T, b *Bridge) PendingPrompt {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p := b.Pending(); len(p) > 0 {
			return p[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no pending prompt")
	return PendingPrompt{}
}

func TestBridgeResolvesPrompt(t *testing.T) {
	b := NewBridge(CapabilityStrongBiometric)
	b.SetCapability(CapabilityStrongBiometric, "enroll-1")

	got := make(chan PromptResult, 1)
	go func() {
		r, _ := b.Prompt(context.Background(), PromptRequest{Class: ClassIdentity, Factor: FactorStrongBiometric})
		got <- r
	}()

	p := waitPending(t, b)
	assert.Equal(t, "identity", p.Class)
	assert.Equal(t, "strong_biometric", p.Factor)
	require.NoError(t, b.Resolve(p.ID, PromptSucceeded))
	assert.Equal(t, PromptSucceeded, <-got)
	assert.True(t, errors.Is(b.Resolve(p.ID, PromptSucceeded), ErrPromptNotFound))
	assert.Empty(t, b.Pending())

	id, err := b.EnrollmentID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "enroll-1", id)
}

func TestBridgeEnrollmentUnknownUntilReported(t *testing.T) {
	b := NewBridge(CapabilityNone)
	_, err := b.EnrollmentID(context.Background())
	assert.ErrorIs(t, err, ErrEnrollmentUnknown)

	b.SetCapability(CapabilityStrongBiometric, "enroll-1")
	id, err := b.EnrollmentID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "enroll-1", id)
}

func TestBridgePromptCancelledByContext(t *testing.T) {
	b := NewBridge(CapabilityStrongBiometric)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := b.Prompt(ctx, PromptRequest{Class: ClassIdentity})
	assert.Equal(t, PromptCancelled, r)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.Pending())
}
