package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultRefreshPath is the refresh endpoint, relative to the base URL.
const DefaultRefreshPath = "/auth/refresh"

// maxRefreshErrorBody bounds how much of a failed refresh response is kept
// in the error message.
const maxRefreshErrorBody = 512

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenResponse is the body returned by the refresh and login endpoints.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// OAuth2 converts the response to a credential pair.
func (t TokenResponse) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.Token,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
	}
}

// HTTPRefresher calls POST {baseURL}/auth/refresh with {"refreshToken": ...}.
// It talks to the network directly, never through Client, so a rejected
// refresh cannot recurse into another refresh.
type HTTPRefresher struct {
	url        string
	httpClient *http.Client
	userAgent  string
}

// NewHTTPRefresher creates a refresher for the given base URL and path.
func NewHTTPRefresher(baseURL, path string, httpClient *http.Client) *HTTPRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if path == "" {
		path = DefaultRefreshPath
	}

	return &HTTPRefresher{
		url:        strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		httpClient: httpClient,
		userAgent:  defaultUserAgent,
	}
}

// SetUserAgent sets the User-Agent sent with refresh requests.
func (r *HTTPRefresher) SetUserAgent(ua string) {
	r.userAgent = ua
}

// Refresh implements Refresher. Any non-2xx status is a failure. A response
// without a refresh token leaves RefreshToken empty; Coordinator keeps the
// previous one in that case.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return exchange(ctx, r.httpClient, r.url, r.userAgent, "refresh", refreshRequest{RefreshToken: refreshToken})
}

// DefaultLoginPath is the password login endpoint, relative to the base URL.
const DefaultLoginPath = "/auth/login"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges an email and password for a credential pair at
// POST {baseURL}{path}. Like refresh, it bypasses Client: there is no
// credential to attach yet, and a 401 here means bad credentials.
func Login(ctx context.Context, httpClient *http.Client, baseURL, path, email, password string) (*oauth2.Token, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if path == "" {
		path = DefaultLoginPath
	}

	target := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")

	return exchange(ctx, httpClient, target, defaultUserAgent, "login", loginRequest{Email: email, Password: password})
}

// exchange POSTs payload as JSON and decodes a TokenResponse. op names the
// exchange in error messages.
func exchange(ctx context.Context, hc *http.Client, target, userAgent, op string, payload any) (*oauth2.Token, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("transport: creating %s request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderRequestID, uuid.NewString())

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading %s response: %w", op, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if len(body) > maxRefreshErrorBody {
			body = body[:maxRefreshErrorBody]
		}

		return nil, fmt.Errorf("transport: %s rejected: HTTP %d: %s", op, resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("transport: decoding %s response: %w", op, err)
	}

	if tr.Token == "" {
		return nil, fmt.Errorf("transport: %s response missing token", op)
	}

	return tr.OAuth2(), nil
}
