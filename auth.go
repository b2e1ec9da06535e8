package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/raffle-client/internal/transport"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password and store the credentials",
		Long: `Sign in with email and password. The returned access and refresh tokens are
saved in the configured credential store. Without --password the password is
read from the first line of stdin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password (default: read from stdin)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials for the session",
		RunE:  runLogout,
	}
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show whether credentials are stored and when the access token expires",
		Long: `Show the state of the stored credentials. Token values are never printed;
only their presence and the access token's expiry (when it is a JWT).`,
		RunE: runToken,
	}
}

func runLogin(cmd *cobra.Command, email, password string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	if email == "" {
		return fmt.Errorf("--email is required")
	}

	if password == "" {
		password, err = readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cc.Cfg.Timeout)
	defer cancel()

	ctx = shutdownContext(ctx, cc.Logger, nil)

	sess, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	cc.Logger.Info("login started", slog.String("session", cc.Cfg.Store.Session))

	tok, err := transport.Login(ctx, sess.http, cc.Cfg.Transport.BaseURL, cc.Cfg.Transport.LoginPath, email, password)
	if err != nil {
		return err
	}

	if err := sess.store.Set(tok); err != nil {
		return err
	}

	cc.Logger.Info("login successful", slog.String("session", cc.Cfg.Store.Session))
	cc.Statusf("Login successful.\n")

	return nil
}

// readPassword reads one line from r, trimming the trailing newline.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("no password given: pass --password or pipe it on stdin")
	}

	return password, nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	sess, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.manualLogout.Store(true)

	if err := sess.store.Clear(); err != nil {
		return err
	}

	cc.Logger.Info("logout successful", slog.String("session", cc.Cfg.Store.Session))
	cc.Statusf("Logged out.\n")

	return nil
}

// tokenStatus is the JSON schema for `token --json`.
type tokenStatus struct {
	Session         string     `json:"session"`
	Backend         string     `json:"backend"`
	HasAccessToken  bool       `json:"hasAccessToken"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	Expired         bool       `json:"expired"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	sess, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	tok := sess.store.Get()
	now := time.Now()

	status := tokenStatus{
		Session:         cc.Cfg.Store.Session,
		Backend:         cc.Cfg.Store.Backend,
		HasAccessToken:  tok.AccessToken != "",
		HasRefreshToken: tok.RefreshToken != "",
	}

	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		status.Expiry = &exp
		status.Expired = !exp.After(now)
	}

	if cc.Flags.JSON {
		return writeJSON(cc.Stdout, status)
	}

	expiry := "unknown"
	if status.Expiry != nil {
		expiry = fmt.Sprintf("%s (%s)", formatTime(*status.Expiry), formatExpiry(*status.Expiry, now))
	}

	printTable(cc.Stdout, []string{"SESSION", "BACKEND", "ACCESS", "REFRESH", "EXPIRES"}, [][]string{{
		orDash(status.Session),
		status.Backend,
		presence(status.HasAccessToken),
		presence(status.HasRefreshToken),
		expiry,
	}})

	if !status.HasAccessToken {
		cc.Statusf("Not logged in. Run 'raffle-client login'.\n")
	}

	return nil
}

func presence(ok bool) string {
	if ok {
		return "stored"
	}

	return "missing"
}
