package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"denied", fmt.Errorf("authorize: %w", ErrAuthDenied), KindAuthDenied},
		{"cancelled", fmt.Errorf("authorize: %w", ErrAuthCancelled), KindAuthCancelled},
		{"expired", ErrAuthExpired, KindAuthExpired},
		{"incomplete", fmt.Errorf("load: %w", ErrIdentityIncomplete), KindIdentityIncomplete},
		{"malformed", Malformed("type missing", nil), KindMalformedPayload},
		{"network", &NetworkError{Operation: "access", StatusCode: 502}, KindNetworkFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestNetworkErrorKeepsTransportCause(t *testing.T) {
	err := &NetworkError{Operation: "delete", Err: context.DeadlineExceeded}

	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "transport error")
	assert.True(t, Retryable(err))
	assert.False(t, Retryable(Malformed("bad json", errors.New("eof"))))
}
