package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/tonimelisma/raffle-client/internal/kvstore"
	"github.com/tonimelisma/raffle-client/internal/notify"
	"github.com/tonimelisma/raffle-client/internal/tokenstore"
	"github.com/tonimelisma/raffle-client/internal/transport"
)

// session bundles the credential store, notifiers, and API client built from
// the resolved config for one command invocation.
type session struct {
	cc     *CLIContext
	store  *tokenstore.Store
	client *transport.Client
	http   *http.Client

	// manualLogout distinguishes "logout" from a forced logout after a
	// rejected refresh; both clear the store.
	manualLogout atomic.Bool

	closers []func() error
}

// openSession wires backend -> token store -> notifiers -> transport client.
func openSession(ctx context.Context, cc *CLIContext) (*session, error) {
	cfg := cc.Cfg
	s := &session{cc: cc, http: &http.Client{}}

	backend, closeBackend, err := kvstore.Open(ctx, kvstore.Options{
		Backend:        cfg.Store.Backend,
		Path:           cfg.Store.Path,
		KeyringService: cfg.Store.KeyringService,
		RedisAddr:      cfg.Store.RedisAddr,
		RedisDB:        cfg.Store.RedisDB,
	}, cc.Logger)
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, closeBackend)

	store, err := tokenstore.New(backend, cfg.Store.Session, s.onLogout, cc.Logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.store = store

	if file, ok := backend.(*kvstore.File); ok && cfg.Store.Watch {
		s.watch(ctx, file)
	}

	opts := []transport.Option{
		transport.WithHTTPClient(s.http),
		transport.WithTimeout(cfg.Timeout),
		transport.WithRetryPolicy(transport.RetryPolicy{
			MaxRetries: cfg.Transport.MaxRetries,
			BaseDelay:  cfg.BaseBackoff,
			MaxDelay:   cfg.MaxBackoff,
			Jitter:     cfg.Transport.Jitter,
		}),
		transport.WithNotifier(s.buildNotifier(ctx)),
		transport.WithQuietNotFound(cfg.Transport.QuietNotFound...),
		transport.WithRefreshPath(cfg.Transport.RefreshPath),
		transport.WithLogger(cc.Logger),
	}

	if cfg.Transport.UserAgent != "" {
		opts = append(opts, transport.WithUserAgent(cfg.Transport.UserAgent))
	}

	s.client = transport.NewClient(cfg.Transport.BaseURL, store, opts...)

	return s, nil
}

// buildNotifier assembles the configured notification sinks. A websocket
// listener that cannot be reached is logged and skipped.
func (s *session) buildNotifier(ctx context.Context) notify.Notifier {
	cfg := s.cc.Cfg.Notify

	var sinks notify.Multi

	if cfg.Console {
		sinks = append(sinks, notify.NewConsole(s.cc.Stderr))
	} else {
		sinks = append(sinks, notify.NewLog(s.cc.Logger))
	}

	if cfg.WebsocketURL != "" {
		ws, err := notify.DialWebSocket(ctx, cfg.WebsocketURL, s.store, s.cc.Logger)
		if err != nil {
			s.cc.Logger.Warn("websocket notifications disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, ws)
			s.closers = append(s.closers, ws.Close)
		}
	}

	return sinks
}

// watch reloads the token store whenever another process rewrites the
// credentials file, until the session closes.
func (s *session) watch(ctx context.Context, file *kvstore.File) {
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		err := file.Watch(watchCtx, s.cc.Logger, func() {
			if err := s.store.Reload(); err != nil {
				s.cc.Logger.Warn("reloading credentials", slog.String("error", err.Error()))
			}
		})
		if err != nil {
			s.cc.Logger.Warn("credentials watch stopped", slog.String("error", err.Error()))
		}
	}()

	s.closers = append(s.closers, func() error {
		cancel()
		<-done

		return nil
	})
}

// onLogout is the token store's logout hook.
func (s *session) onLogout() {
	if s.manualLogout.Load() {
		return
	}

	s.cc.Statusf("Session expired. Run 'raffle-client login' to sign in again.\n")
}

// Close releases every resource in reverse order of acquisition.
func (s *session) Close() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}

	s.closers = nil

	return errors.Join(errs...)
}
