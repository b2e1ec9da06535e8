// Package tokenstore holds the access/refresh credential pair for one session
// and persists it through a synchronous key-value backend. Only the refresh
// coordinator and the login/logout paths mutate it.
package tokenstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Backend key names. Scoped by session when one is configured.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
	KeyExpiry       = "tokenExpiry"
)

// ErrNoCredentials is returned by Token when no access token is stored.
var ErrNoCredentials = errors.New("tokenstore: no credentials stored")

// Backend is the persistent key-value store. Reads report absence with
// ok == false rather than an error.
type Backend interface {
	ReadKey(name string) (value string, ok bool, err error)
	WriteKey(name, value string) error
	DeleteKey(name string) error
}

// Store is the Token Store. The credential pair is cached in memory and
// written through to the backend on every change.
type Store struct {
	backend  Backend
	session  string
	onLogout func()
	logger   *slog.Logger

	mu        sync.Mutex
	tok       *oauth2.Token
	loggedOut bool
	// unsaved is set while the in-memory pair is newer than the backend
	// because its last write failed.
	unsaved bool
}

// New creates a Store over backend and loads any persisted credentials.
// onLogout is the forced-logout side effect; it fires from Clear at most
// once between successful Sets. session namespaces the backend keys so one
// backend can hold several sessions.
func New(backend Backend, session string, onLogout func(), logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if onLogout == nil {
		onLogout = func() {}
	}

	s := &Store{
		backend:  backend,
		session:  session,
		onLogout: onLogout,
		logger:   logger,
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) key(name string) string {
	if s.session == "" {
		return name
	}

	return s.session + ":" + name
}

// Get returns a copy of the current credential pair. Absent credentials are
// returned as a zero token, never nil.
func (s *Store) Get() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return &oauth2.Token{}
	}

	cp := *s.tok

	return &cp
}

// Set replaces the credential pair. The in-memory pair is updated even when
// persisting fails, so the running process keeps working; Reload then keeps
// it and retries the write instead of reading the older backend copy.
func (s *Store) Set(tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("tokenstore: nil token")
	}

	cp := *tok
	if cp.Expiry.IsZero() {
		if exp, ok := AccessTokenExpiry(cp.AccessToken); ok {
			cp.Expiry = exp
		}
	}

	s.mu.Lock()
	s.tok = &cp
	s.loggedOut = false
	s.mu.Unlock()

	err := s.persist(&cp)

	s.mu.Lock()
	s.unsaved = err != nil
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.logger.Debug("credentials stored",
		slog.String("session", s.session),
		slog.Bool("has_refresh_token", cp.RefreshToken != ""),
		slog.Time("expiry", cp.Expiry),
	)

	return nil
}

// persist writes every key of tok to the backend.
func (s *Store) persist(tok *oauth2.Token) error {
	var errs []error

	errs = append(errs, s.write(KeyAccessToken, tok.AccessToken))
	errs = append(errs, s.write(KeyRefreshToken, tok.RefreshToken))

	if tok.Expiry.IsZero() {
		errs = append(errs, s.backend.DeleteKey(s.key(KeyExpiry)))
	} else {
		errs = append(errs, s.write(KeyExpiry, tok.Expiry.UTC().Format(time.RFC3339)))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("tokenstore: persisting credentials: %w", err)
	}

	return nil
}

// write stores value under name, deleting the key for empty values.
func (s *Store) write(name, value string) error {
	if value == "" {
		return s.backend.DeleteKey(s.key(name))
	}

	return s.backend.WriteKey(s.key(name), value)
}

// Clear removes the credential pair and fires the forced-logout side effect.
// Repeated calls are safe; the side effect fires only on the first call after
// credentials were last set.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.tok = nil
	s.unsaved = false
	fire := !s.loggedOut
	s.loggedOut = true
	s.mu.Unlock()

	err := errors.Join(
		s.backend.DeleteKey(s.key(KeyAccessToken)),
		s.backend.DeleteKey(s.key(KeyRefreshToken)),
		s.backend.DeleteKey(s.key(KeyExpiry)),
	)

	if fire {
		s.logger.Info("credentials cleared, forcing logout", slog.String("session", s.session))
		s.onLogout()
	}

	if err != nil {
		return fmt.Errorf("tokenstore: clearing credentials: %w", err)
	}

	return nil
}

// Reload re-reads the credential pair from the backend, picking up changes
// made by another process. Credentials read this way re-arm the logout hook.
// While an unsaved pair is held in memory the backend copy is older, so
// Reload retries the write instead.
func (s *Store) Reload() error {
	s.mu.Lock()
	var pending *oauth2.Token
	if s.unsaved && s.tok != nil {
		cp := *s.tok
		pending = &cp
	}
	s.mu.Unlock()

	if pending != nil {
		return s.retryPersist(pending)
	}

	access, _, err := s.backend.ReadKey(s.key(KeyAccessToken))
	if err != nil {
		return fmt.Errorf("tokenstore: reading access token: %w", err)
	}

	refresh, _, err := s.backend.ReadKey(s.key(KeyRefreshToken))
	if err != nil {
		return fmt.Errorf("tokenstore: reading refresh token: %w", err)
	}

	rawExpiry, hasExpiry, err := s.backend.ReadKey(s.key(KeyExpiry))
	if err != nil {
		return fmt.Errorf("tokenstore: reading expiry: %w", err)
	}

	var tok *oauth2.Token
	if access != "" || refresh != "" {
		tok = &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}

		if hasExpiry {
			if exp, parseErr := time.Parse(time.RFC3339, rawExpiry); parseErr == nil {
				tok.Expiry = exp
			} else {
				s.logger.Warn("ignoring unparseable token expiry", slog.String("error", parseErr.Error()))
			}
		}
	}

	s.mu.Lock()
	s.tok = tok
	if tok != nil {
		s.loggedOut = false
	}
	s.mu.Unlock()

	s.logger.Debug("credentials loaded",
		slog.String("session", s.session),
		slog.Bool("present", tok != nil),
	)

	return nil
}

// retryPersist writes an unsaved pair again. A second failure keeps it
// unsaved and is only logged, so a file event cannot roll memory back.
func (s *Store) retryPersist(tok *oauth2.Token) error {
	if err := s.persist(tok); err != nil {
		s.logger.Warn("keeping unsaved credentials over backend copy",
			slog.String("session", s.session),
			slog.String("error", err.Error()),
		)

		return nil
	}

	s.mu.Lock()
	// A Set or Clear in the meantime owns the flag now.
	if s.tok != nil && s.tok.AccessToken == tok.AccessToken {
		s.unsaved = false
	}
	s.mu.Unlock()

	s.logger.Info("unsaved credentials persisted", slog.String("session", s.session))

	return nil
}

// Token implements oauth2.TokenSource over the stored credentials, for
// callers that hand the store to oauth2-aware HTTP clients.
func (s *Store) Token() (*oauth2.Token, error) {
	tok := s.Get()
	if tok.AccessToken == "" {
		return nil, ErrNoCredentials
	}

	return tok, nil
}

var _ oauth2.TokenSource = (*Store)(nil)
