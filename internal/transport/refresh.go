package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoRefreshToken is the refresh failure cause when no refresh credential
// is stored.
var ErrNoRefreshToken = errors.New("transport: no refresh token available")

// defaultRefreshTimeout bounds a refresh exchange. The refresh is detached
// from the triggering caller's context, so it needs its own deadline.
const defaultRefreshTimeout = 30 * time.Second

// State is the refresh cycle state.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}

	return "idle"
}

// TokenStore holds the credential pair. Defined at the consumer; the
// tokenstore package provides the persistent implementation.
type TokenStore interface {
	Get() *oauth2.Token
	Set(tok *oauth2.Token) error
	Clear() error
}

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// pendingCall is a call suspended until the current refresh cycle settles.
// done is buffered so settling never blocks on a caller that gave up.
type pendingCall struct {
	req  *Request
	done chan error
}

// Coordinator runs at most one credential refresh at a time. Every call that
// observes Unauthenticated while a refresh is in flight joins that refresh's
// queue, and the whole queue settles together: all replay with the new
// credential, or all fail with Unauthenticated.
type Coordinator struct {
	store     TokenStore
	refresher Refresher
	logger    *slog.Logger
	timeout   time.Duration

	mu     sync.Mutex
	state  State
	queue  []*pendingCall
	cycles int
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(store TokenStore, refresher Refresher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		store:     store,
		refresher: refresher,
		logger:    logger,
		timeout:   defaultRefreshTimeout,
	}
}

// State returns the current refresh cycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Pending returns the number of calls waiting on the in-flight refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// Cycles returns how many refresh exchanges have been started.
func (c *Coordinator) Cycles() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cycles
}

// Await suspends req, which just failed with Unauthenticated, until a
// refresh settles. The first caller to arrive while idle starts the refresh;
// later callers join its queue. A nil return means fresh credentials are
// stored and req may be replayed; otherwise the error is a terminal
// Unauthenticated *Error, or the caller's context error.
//
// req is marked RetriedAfterAuth so a replay that fails again with
// Unauthenticated is surfaced instead of queued.
func (c *Coordinator) Await(ctx context.Context, req *Request) error {
	if req.RetriedAfterAuth {
		return unauthenticated(req, nil)
	}

	req.RetriedAfterAuth = true
	p := &pendingCall{req: req, done: make(chan error, 1)}

	c.mu.Lock()

	// The call was sent before an earlier cycle stored new credentials:
	// replay it with those instead of refreshing again.
	if c.state == StateIdle && c.rotatedSince(req) {
		c.mu.Unlock()

		c.logger.Debug("credentials rotated since dispatch, replaying",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)

		return nil
	}

	c.queue = append(c.queue, p)

	if c.state == StateIdle {
		c.state = StateRefreshing
		c.cycles++
		cycle := c.cycles
		c.mu.Unlock()

		c.logger.Info("credential refresh started",
			slog.Int("cycle", cycle),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)

		// The refresh outlives the triggering caller: a leader that gives up
		// must not fail everyone else's refresh.
		go c.runCycle(context.WithoutCancel(ctx), cycle)
	} else {
		c.mu.Unlock()

		c.logger.Debug("queued behind in-flight refresh",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)
	}

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("transport: %s %s canceled while awaiting refresh: %w", req.Method, req.Path, ctx.Err())
	}
}

// runCycle performs the refresh exchange and settles the queue.
func (c *Coordinator) runCycle(ctx context.Context, cycle int) {
	refreshErr := c.refresh(ctx)

	if refreshErr != nil {
		c.logger.Warn("credential refresh failed, clearing credentials",
			slog.Int("cycle", cycle),
			slog.String("error", refreshErr.Error()),
		)

		// Clear before returning to idle so no new cycle can start from the
		// rejected refresh token.
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("clearing credentials failed",
				slog.Int("cycle", cycle),
				slog.String("error", err.Error()),
			)
		}
	}

	// Swap the queue and leave Refreshing under one lock: a call that fails
	// after this point starts a new cycle instead of joining a drained queue.
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("credential refresh settled",
		slog.Int("cycle", cycle),
		slog.Bool("ok", refreshErr == nil),
		slog.Int("calls", len(queue)),
	)

	// Resume in queue order. Each call replays on its own goroutine, so
	// replays run concurrently.
	for _, p := range queue {
		if refreshErr != nil {
			p.done <- unauthenticated(p.req, refreshErr)
			continue
		}

		p.done <- nil
	}
}

// rotatedSince reports whether the stored access token differs from the one
// req was last sent with.
func (c *Coordinator) rotatedSince(req *Request) bool {
	if req.sentWith == "" {
		return false
	}

	current := c.store.Get()

	return current != nil && current.AccessToken != "" && current.AccessToken != req.sentWith
}

func (c *Coordinator) refresh(ctx context.Context) error {
	current := c.store.Get()
	if current == nil || current.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tok, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return err
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}

	if err := c.store.Set(tok); err != nil {
		// The new pair is held in memory; replays still succeed.
		c.logger.Warn("persisting refreshed credentials failed",
			slog.String("error", err.Error()),
		)
	}

	return nil
}
