package transport

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func decorateDefault(r *http.Request, tok *oauth2.Token) *http.Request {
	return decorate(r, tok, []RequestTransform{Authorize, StampRequestID})
}

func TestDecorate_AttachesTokenAndID(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "https://api.example.com/raffles", nil)
	require.NoError(t, err)

	out := decorateDefault(r, &oauth2.Token{AccessToken: "abc"})

	assert.Equal(t, "Bearer abc", out.Header.Get("Authorization"))
	assert.NotEmpty(t, out.Header.Get(HeaderRequestID))

	// The input is not modified.
	assert.Empty(t, r.Header.Get("Authorization"))
	assert.Empty(t, r.Header.Get(HeaderRequestID))
}

func TestDecorate_NoToken(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "https://api.example.com/raffles", nil)
	require.NoError(t, err)

	assert.Empty(t, decorateDefault(r, nil).Header.Get("Authorization"))
	assert.Empty(t, decorateDefault(r, &oauth2.Token{RefreshToken: "only-refresh"}).Header.Get("Authorization"))
	assert.NotEmpty(t, decorateDefault(r, nil).Header.Get(HeaderRequestID))
}

func TestDecorate_FreshIDPerAttempt(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "https://api.example.com/raffles", nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for range 50 {
		id := decorateDefault(r, nil).Header.Get(HeaderRequestID)
		assert.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}

func TestDecorate_TransformOrder(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "https://api.example.com/raffles", nil)
	require.NoError(t, err)

	var order []string
	first := func(r *http.Request, _ *oauth2.Token) {
		order = append(order, "first")
		r.Header.Set("X-Step", "1")
	}
	second := func(r *http.Request, _ *oauth2.Token) {
		order = append(order, "second:"+r.Header.Get("X-Step"))
	}

	decorate(r, nil, []RequestTransform{first, second})

	assert.Equal(t, []string{"first", "second:1"}, order)
}
