package tokenstore

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// mapBackend is an in-memory Backend with optional write failures.
type mapBackend struct {
	mu       sync.Mutex
	keys     map[string]string
	writeErr error
}

func newMapBackend() *mapBackend {
	return &mapBackend{keys: make(map[string]string)}
}

func (b *mapBackend) ReadKey(name string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.keys[name]

	return v, ok, nil
}

func (b *mapBackend) WriteKey(name, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeErr != nil {
		return b.writeErr
	}

	b.keys[name] = value

	return nil
}

func (b *mapBackend) DeleteKey(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.keys, name)

	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		Subject:   "user-1",
	})

	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return s
}

func TestNew_LoadsPersistedCredentials(t *testing.T) {
	b := newMapBackend()
	b.keys[KeyAccessToken] = "access-1"
	b.keys[KeyRefreshToken] = "refresh-1"
	b.keys[KeyExpiry] = "2030-01-02T03:04:05Z"

	s, err := New(b, "", nil, slog.Default())
	require.NoError(t, err)

	tok := s.Get()
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), tok.Expiry.UTC())
}

func TestGet_EmptyStore(t *testing.T) {
	s, err := New(newMapBackend(), "", nil, nil)
	require.NoError(t, err)

	tok := s.Get()
	require.NotNil(t, tok)
	assert.Empty(t, tok.AccessToken)
	assert.Empty(t, tok.RefreshToken)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s, err := New(newMapBackend(), "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))

	tok := s.Get()
	tok.AccessToken = "mutated"

	assert.Equal(t, "a", s.Get().AccessToken)
}

func TestSet_PersistsAndScopesBySession(t *testing.T) {
	b := newMapBackend()

	s, err := New(b, "alice", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))

	assert.Equal(t, "a", b.keys["alice:token"])
	assert.Equal(t, "r", b.keys["alice:refreshToken"])
	assert.NotContains(t, b.keys, "token")

	other, err := New(b, "bob", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, other.Get().AccessToken)
}

func TestSet_EmptyRefreshTokenDeletesKey(t *testing.T) {
	b := newMapBackend()

	s, err := New(b, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "b"}))

	assert.NotContains(t, b.keys, KeyRefreshToken)
	assert.Equal(t, "b", b.keys[KeyAccessToken])
}

func TestSet_DerivesExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	b := newMapBackend()

	s, err := New(b, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: signedToken(t, exp), RefreshToken: "r"}))

	assert.True(t, exp.Equal(s.Get().Expiry))
	assert.Equal(t, exp.UTC().Format(time.RFC3339), b.keys[KeyExpiry])
}

func TestSet_PersistFailureKeepsMemory(t *testing.T) {
	b := newMapBackend()
	b.writeErr = errors.New("disk full")

	s, err := New(b, "", nil, nil)
	require.NoError(t, err)

	err = s.Set(&oauth2.Token{AccessToken: "a", RefreshToken: "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, b.writeErr)
	assert.Equal(t, "a", s.Get().AccessToken)
}

func TestSet_Nil(t *testing.T) {
	s, err := New(newMapBackend(), "", nil, nil)
	require.NoError(t, err)
	assert.Error(t, s.Set(nil))
}

func TestClear_FiresLogoutOnceBetweenSets(t *testing.T) {
	b := newMapBackend()
	logouts := 0

	s, err := New(b, "", func() { logouts++ }, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	assert.Equal(t, 1, logouts)
	assert.Empty(t, b.keys)
	assert.Empty(t, s.Get().AccessToken)

	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "b", RefreshToken: "r"}))
	require.NoError(t, s.Clear())
	assert.Equal(t, 2, logouts)
}

func TestReload_PicksUpExternalChanges(t *testing.T) {
	b := newMapBackend()

	s, err := New(b, "", nil, nil)
	require.NoError(t, err)

	b.keys[KeyAccessToken] = "from-elsewhere"
	b.keys[KeyRefreshToken] = "r"
	require.NoError(t, s.Reload())
	assert.Equal(t, "from-elsewhere", s.Get().AccessToken)

	delete(b.keys, KeyAccessToken)
	delete(b.keys, KeyRefreshToken)
	require.NoError(t, s.Reload())
	assert.Empty(t, s.Get().AccessToken)
}

func TestReload_RearmsLogoutHook(t *testing.T) {
	b := newMapBackend()
	logouts := 0

	s, err := New(b, "", func() { logouts++ }, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"}))

	require.NoError(t, s.Clear())
	assert.Equal(t, 1, logouts)

	// Another process signs in and the watcher reloads its credentials.
	b.keys[KeyAccessToken] = "access-2"
	b.keys[KeyRefreshToken] = "refresh-2"
	require.NoError(t, s.Reload())
	assert.Equal(t, "access-2", s.Get().AccessToken)

	require.NoError(t, s.Clear())
	assert.Equal(t, 2, logouts, "clearing reloaded credentials forces logout again")
}

func TestReload_EmptyBackendKeepsLogoutDisarmed(t *testing.T) {
	logouts := 0

	s, err := New(newMapBackend(), "", func() { logouts++ }, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, s.Clear())

	require.NoError(t, s.Reload())
	require.NoError(t, s.Clear())
	assert.Equal(t, 1, logouts)
}

func TestReload_KeepsUnsavedCredentials(t *testing.T) {
	b := newMapBackend()
	b.keys[KeyAccessToken] = "access-1"
	b.keys[KeyRefreshToken] = "refresh-1"

	s, err := New(b, "", nil, nil)
	require.NoError(t, err)

	b.writeErr = errors.New("disk full")
	require.Error(t, s.Set(&oauth2.Token{AccessToken: "access-2", RefreshToken: "refresh-2"}))

	// The backend still holds the older pair; memory wins.
	require.NoError(t, s.Reload())
	assert.Equal(t, "access-2", s.Get().AccessToken)
	assert.Equal(t, "access-1", b.keys[KeyAccessToken])

	// Once writes succeed again, Reload saves the held pair.
	b.writeErr = nil
	require.NoError(t, s.Reload())
	assert.Equal(t, "access-2", s.Get().AccessToken)
	assert.Equal(t, "access-2", b.keys[KeyAccessToken])
	assert.Equal(t, "refresh-2", b.keys[KeyRefreshToken])

	// With nothing unsaved, external changes are picked up as usual.
	b.keys[KeyAccessToken] = "access-3"
	require.NoError(t, s.Reload())
	assert.Equal(t, "access-3", s.Get().AccessToken)
}

func TestReload_IgnoresBadExpiry(t *testing.T) {
	b := newMapBackend()
	b.keys[KeyAccessToken] = "a"
	b.keys[KeyExpiry] = "not-a-time"

	s, err := New(b, "", nil, nil)
	require.NoError(t, err)
	assert.True(t, s.Get().Expiry.IsZero())
}

func TestToken_TokenSource(t *testing.T) {
	s, err := New(newMapBackend(), "", nil, nil)
	require.NoError(t, err)

	_, err = s.Token()
	require.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, s.Set(&oauth2.Token{AccessToken: "a"}))

	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
}

func TestAccessTokenExpiry(t *testing.T) {
	exp := time.Date(2031, 5, 6, 7, 8, 9, 0, time.UTC)

	got, ok := AccessTokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = AccessTokenExpiry("opaque-token")
	assert.False(t, ok)

	_, ok = AccessTokenExpiry("")
	assert.False(t, ok)
}
