package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client defaults.
const (
	DefaultTimeout   = 30 * time.Second
	defaultUserAgent = "raffle-client/0.1"
)

// DefaultQuietNotFound lists path fragments whose 404s are expected empty
// results and never notified.
var DefaultQuietNotFound = []string{"/search"}

// verdict is what an outcome handler decided about a failed attempt.
type verdict int

const (
	verdictPass       verdict = iota // not mine, ask the next handler
	verdictRedispatch                // send the request again
	verdictDone                      // return the accompanying error
)

// outcomeHandler inspects a failed attempt. Handlers run in order until one
// returns something other than verdictPass.
type outcomeHandler func(ctx context.Context, req *Request, failure *Error) (verdict, error)

// Client is the authenticated HTTP client. Every call goes through
// decorate -> dispatch -> (on failure) refresh, retry, or surface.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	store       TokenStore
	coordinator *Coordinator
	refresher   Refresher
	refreshPath string
	classifier  *classifier
	retry       RetryPolicy
	transforms  []RequestTransform
	handlers    []outcomeHandler
	userAgent   string
	logger      *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-attempt timeout. A timed-out attempt is
// classified as NetworkUnreachable.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithNotifier sets the collaborator that displays surfaced failures.
func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.classifier.notifier = n }
}

// WithQuietNotFound replaces the path fragments whose 404s are not notified.
func WithQuietNotFound(fragments ...string) Option {
	return func(c *Client) { c.classifier.quietNotFound = fragments }
}

// WithRefresher replaces the default HTTP refresh exchange.
func WithRefresher(r Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithRefreshPath sets the refresh endpoint used by the default refresher.
// Ignored when WithRefresher is given.
func WithRefreshPath(path string) Option {
	return func(c *Client) { c.refreshPath = path }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRequestTransform appends a transform after the built-in ones.
func WithRequestTransform(t RequestTransform) Option {
	return func(c *Client) { c.transforms = append(c.transforms, t) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
		c.classifier.logger = l
	}
}

// NewClient creates a Client for baseURL that reads and refreshes
// credentials through store.
func NewClient(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		timeout: DefaultTimeout,
		store:   store,
		classifier: &classifier{
			notifier:      discardNotifier{},
			quietNotFound: DefaultQuietNotFound,
			logger:        slog.Default(),
		},
		retry:     DefaultRetryPolicy(),
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
		sleepFunc: timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}

	if c.logger == nil {
		c.logger = slog.Default()
		c.classifier.logger = c.logger
	}

	if c.classifier.notifier == nil {
		c.classifier.notifier = discardNotifier{}
	}

	if c.refresher == nil {
		hr := NewHTTPRefresher(baseURL, c.refreshPath, c.httpClient)
		hr.SetUserAgent(c.userAgent)
		c.refresher = hr
	}

	builtin := []RequestTransform{Authorize, StampRequestID, SetUserAgent(c.userAgent)}
	c.transforms = append(builtin, c.transforms...)

	c.coordinator = NewCoordinator(store, c.refresher, c.logger)
	if c.timeout > 0 {
		c.coordinator.timeout = c.timeout
	}

	c.handlers = []outcomeHandler{
		c.handleUnauthenticated,
		c.handleTransient,
		c.handleSurface,
	}

	return c
}

// Coordinator exposes the refresh coordinator for inspection.
func (c *Client) Coordinator() *Coordinator {
	return c.coordinator
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post sends a POST request with body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put sends a PUT request with body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Patch sends a PATCH request with body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends a request. A 2xx response is returned as-is; every other outcome
// is a *Error (or the caller's context error).
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	req, err := newRequest(method, path, body, opts)
	if err != nil {
		return nil, err
	}

	target, err := req.resolve(c.baseURL)
	if err != nil {
		return nil, err
	}

	// Malformed requests fail here instead of being retried as network errors.
	if _, err := req.build(ctx, target); err != nil {
		return nil, err
	}

	return c.execute(ctx, req, target)
}

func (c *Client) execute(ctx context.Context, req *Request, target string) (*Response, error) {
	for {
		resp, err := c.dispatch(ctx, req, target)

		if ctx.Err() != nil {
			return nil, fmt.Errorf("transport: %s %s canceled: %w", req.Method, req.Path, ctx.Err())
		}

		if err == nil && resp.success() {
			c.logger.Debug("request succeeded",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", req.Attempt+1),
			)

			return resp, nil
		}

		failure := c.classifier.classify(req, resp, err)

		v, handlerErr := c.handle(ctx, req, failure)
		if v == verdictRedispatch {
			continue
		}

		return nil, handlerErr
	}
}

func (c *Client) handle(ctx context.Context, req *Request, failure *Error) (verdict, error) {
	for _, h := range c.handlers {
		v, err := h(ctx, req, failure)
		if v != verdictPass {
			return v, err
		}
	}

	return verdictDone, failure
}

// handleUnauthenticated hands a 401 to the refresh coordinator. A call that
// already went through one refresh is surfaced as final.
func (c *Client) handleUnauthenticated(ctx context.Context, req *Request, failure *Error) (verdict, error) {
	if failure.Kind != KindUnauthenticated {
		return verdictPass, nil
	}

	if req.RetriedAfterAuth {
		c.logger.Warn("unauthenticated after credential refresh",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)

		return verdictDone, failure
	}

	if err := c.coordinator.Await(ctx, req); err != nil {
		return verdictDone, err
	}

	c.logger.Debug("replaying after credential refresh",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	return verdictRedispatch, nil
}

// handleTransient waits out the backoff for retryable kinds.
func (c *Client) handleTransient(ctx context.Context, req *Request, failure *Error) (verdict, error) {
	if !c.retry.ShouldRetry(failure.Kind, req.Attempt) {
		return verdictPass, nil
	}

	backoff := c.retry.DelayFor(req.Attempt)
	c.logger.Warn("retrying after transient failure",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("kind", failure.Kind.String()),
		slog.Int("status", failure.StatusCode),
		slog.Int("attempt", req.Attempt+1),
		slog.Duration("backoff", backoff),
	)

	if err := c.sleepFunc(ctx, backoff); err != nil {
		return verdictDone, fmt.Errorf("transport: %s %s canceled: %w", req.Method, req.Path, err)
	}

	req.Attempt++

	return verdictRedispatch, nil
}

// handleSurface notifies and returns the failure to the caller.
func (c *Client) handleSurface(_ context.Context, req *Request, failure *Error) (verdict, error) {
	if req.Attempt > 0 {
		c.logger.Error("request failed after retries",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("kind", failure.Kind.String()),
			slog.Int("status", failure.StatusCode),
			slog.Int("attempts", req.Attempt+1),
		)
	}

	c.classifier.surface(failure)

	return verdictDone, failure
}

// dispatch sends one decorated attempt and buffers the response body.
func (c *Client) dispatch(ctx context.Context, req *Request, target string) (*Response, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hreq, err := req.build(ctx, target)
	if err != nil {
		return nil, err
	}

	tok := c.store.Get()
	if tok != nil {
		req.sentWith = tok.AccessToken
	}

	hreq = decorate(hreq, tok, c.transforms)

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: reading response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RequestID:  hreq.Header.Get(HeaderRequestID),
	}, nil
}
