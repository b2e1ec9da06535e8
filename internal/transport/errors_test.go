package transport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsSentinel(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindUnclassified, ErrUnclassified},
		{KindNetworkUnreachable, ErrNetworkUnreachable},
		{KindUnauthenticated, ErrUnauthenticated},
		{KindForbidden, ErrForbidden},
		{KindNotFound, ErrNotFound},
		{KindValidationFailed, ErrValidationFailed},
		{KindServerFault, ErrServerFault},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &Error{Kind: tt.kind, Method: http.MethodGet, Path: "/x"})
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: KindNetworkUnreachable, Method: http.MethodGet, Path: "/raffles", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNetworkUnreachable)
	assert.Equal(t, "transport: GET /raffles: network_unreachable: connection refused", err.Error())
}

func TestError_MessageWithStatus(t *testing.T) {
	err := &Error{
		Kind:       KindForbidden,
		StatusCode: http.StatusForbidden,
		Method:     http.MethodPost,
		Path:       "/raffles",
		RequestID:  "req-1",
		Message:    messageForbidden,
	}

	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Contains(t, err.Error(), "request-id: req-1")

	err.RequestID = ""
	assert.NotContains(t, err.Error(), "request-id")
}

func TestKindOf_NonTransportError(t *testing.T) {
	assert.Equal(t, KindUnclassified, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnclassified, KindOf(nil))
}

func TestUnauthenticated_CarriesCause(t *testing.T) {
	cause := errors.New("refresh rejected")
	err := unauthenticated(&Request{Method: http.MethodGet, Path: "/me"}, cause)

	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, messageUnauthenticated, err.Message)
}
