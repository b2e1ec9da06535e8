package transport

import (
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// HeaderRequestID carries a fresh identifier on every attempt.
const HeaderRequestID = "X-Request-ID"

// RequestTransform adjusts one outbound attempt. Transforms run in order on a
// clone of the attempt's request, so they never see a previously decorated
// attempt.
type RequestTransform func(r *http.Request, tok *oauth2.Token)

// Authorize sets the Authorization header when an access token is present.
func Authorize(r *http.Request, tok *oauth2.Token) {
	if tok == nil || tok.AccessToken == "" {
		return
	}

	tok.SetAuthHeader(r)
}

// StampRequestID sets a new X-Request-ID. Retries and replays get their own id.
func StampRequestID(r *http.Request, _ *oauth2.Token) {
	r.Header.Set(HeaderRequestID, uuid.NewString())
}

// SetUserAgent returns a transform that sets the User-Agent header.
func SetUserAgent(ua string) RequestTransform {
	return func(r *http.Request, _ *oauth2.Token) {
		r.Header.Set("User-Agent", ua)
	}
}

// decorate returns a copy of r with transforms applied in order. r itself is
// left untouched.
func decorate(r *http.Request, tok *oauth2.Token, transforms []RequestTransform) *http.Request {
	out := r.Clone(r.Context())
	for _, t := range transforms {
		t(out, tok)
	}

	return out
}
