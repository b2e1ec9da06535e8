package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/raffle-client/internal/config"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "secret"
)

// fakeAPI is a minimal raffle API: password login, token refresh with
// rotation, and one protected collection.
type fakeAPI struct {
	mu            sync.Mutex
	access        string
	refresh       string
	generation    int
	refreshes     int
	rejectRefresh bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	api := &fakeAPI{}
	api.rotate()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", api.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", api.handleRefresh)
	mux.HandleFunc("GET /api/raffles", api.authorized(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Spring draw"}})
	}))
	mux.HandleFunc("POST /api/raffles", api.authorized(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		if body["name"] == nil {
			writeTestJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "The given data was invalid.",
				"errors":  map[string][]string{"name": {"Name is required."}},
			})

			return
		}

		writeTestJSON(w, http.StatusCreated, map[string]any{"id": 2, "name": body["name"]})
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return api, srv
}

// rotate issues a new credential pair. Callers hold mu or own api exclusively.
func (a *fakeAPI) rotate() {
	a.generation++
	a.access = "access-" + strconv.Itoa(a.generation)
	a.refresh = "refresh-" + strconv.Itoa(a.generation)
}

// expireAccess invalidates the current access token but keeps the refresh token.
func (a *fakeAPI) expireAccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.access = "revoked-" + strconv.Itoa(a.generation)
}

func (a *fakeAPI) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.refreshes
}

func (a *fakeAPI) currentRefresh() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.refresh
}

func (a *fakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Email != testEmail || body.Password != testPassword {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials."})
		return
	}

	a.mu.Lock()
	a.rotate()
	resp := map[string]string{"token": a.access, "refreshToken": a.refresh}
	a.mu.Unlock()

	writeTestJSON(w, http.StatusOK, resp)
}

func (a *fakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.refreshes++

	if a.rejectRefresh || body.RefreshToken != a.refresh {
		writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token revoked."})
		return
	}

	a.rotate()
	writeTestJSON(w, http.StatusOK, map[string]string{"token": a.access, "refreshToken": a.refresh})
}

func (a *fakeAPI) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+a.access
		a.mu.Unlock()

		if !ok {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
			return
		}

		next(w, r)
	}
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCLIConfig writes a config pointing at srv with a file credential store
// in a temp dir, and clears environment overrides. Returns the config path.
func writeCLIConfig(t *testing.T, srv *httptest.Server, extra string) string {
	t.Helper()

	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvSession, "")
	t.Setenv(config.EnvBaseURL, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[transport]
base_url = "` + srv.URL + `/api"
timeout = "5s"
base_backoff = "1ms"

[store]
backend = "file"
path = "` + filepath.ToSlash(filepath.Join(dir, "credentials.json")) + `"

[logging]
log_level = "warn"
log_format = "text"
` + extra

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// runCLI executes the root command with args and returns captured output.
func runCLI(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err = cmd.ExecuteContext(context.Background())

	return out.String(), errOut.String(), err
}

// loginCLI signs in through the CLI and fails the test on error.
func loginCLI(t *testing.T, cfgPath string) {
	t.Helper()

	_, stderr, err := runCLI(t, testPassword+"\n", "--config", cfgPath, "login", "--email", testEmail)
	require.NoError(t, err, stderr)
}
