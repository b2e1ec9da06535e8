package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// memStore is an in-memory TokenStore that counts mutations.
type memStore struct {
	mu     sync.Mutex
	tok    *oauth2.Token
	sets   int
	clears int
}

func newMemStore(access, refresh string) *memStore {
	return &memStore{tok: &oauth2.Token{AccessToken: access, RefreshToken: refresh}}
}

func (s *memStore) Get() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return &oauth2.Token{}
	}

	cp := *s.tok

	return &cp
}

func (s *memStore) Set(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tok
	s.tok = &cp
	s.sets++

	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tok = nil
	s.clears++

	return nil
}

func (s *memStore) counts() (sets, clears int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sets, s.clears
}

// notification is one recorded Notify call.
type notification struct {
	message string
	kind    string
}

// recordingNotifier records every notification.
type recordingNotifier struct {
	mu   sync.Mutex
	seen []notification
}

func (n *recordingNotifier) Notify(message, kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seen = append(n.seen, notification{message: message, kind: kind})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]notification(nil), n.seen...)
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string, store TokenStore, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithHTTPClient(http.DefaultClient),
		WithLogger(slog.Default()),
	}

	c := NewClient(url, store, append(base, opts...)...)
	c.sleepFunc = noopSleep

	return c
}
