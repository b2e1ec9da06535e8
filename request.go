package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/raffle-client/internal/transport"
)

// requestMethods are the HTTP verbs exposed as subcommands.
var requestMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// maxRepeat bounds --repeat so a typo cannot flood the API.
const maxRepeat = 1000

type requestFlags struct {
	data    string
	headers []string
	query   []string
	repeat  int
	timeout time.Duration
}

func newRequestCmd(method string) *cobra.Command {
	var rf requestFlags

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: fmt.Sprintf("Send an authenticated %s request", method),
		Long: fmt.Sprintf(`Send an authenticated %s request to the API.

The access token is attached automatically. An expired token is refreshed once
and the request replayed; network failures and 5xx responses are retried with
exponential backoff.`, method),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, method, args[0], &rf)
		},
	}

	if method != http.MethodGet && method != http.MethodDelete {
		cmd.Flags().StringVarP(&rf.data, "data", "d", "", "request body; @file reads a file, @- reads stdin")
	}

	cmd.Flags().StringArrayVarP(&rf.headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().StringArrayVar(&rf.query, "query", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().IntVar(&rf.repeat, "repeat", 1, "send N concurrent copies of the request")
	cmd.Flags().DurationVar(&rf.timeout, "timeout", 0, "per-attempt timeout (default from config)")

	return cmd
}

func runRequest(cmd *cobra.Command, method, path string, rf *requestFlags) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	if rf.repeat < 1 || rf.repeat > maxRepeat {
		return fmt.Errorf("--repeat must be between 1 and %d, got %d", maxRepeat, rf.repeat)
	}

	body, err := readData(rf.data, cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts, err := requestOptions(rf)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sess, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx = shutdownContext(ctx, cc.Logger, sess.client.Coordinator())

	if rf.repeat == 1 {
		resp, err := sess.client.Do(ctx, method, path, body, opts...)
		if err != nil {
			return err
		}

		return printResponse(cc, resp)
	}

	return runRepeated(ctx, cc, sess, method, path, body, opts, rf.repeat)
}

// repeatResult is one call's outcome in a --repeat batch.
type repeatResult struct {
	resp *transport.Response
	err  error
}

// runRepeated fires n copies concurrently. All calls run to completion; the
// first error (if any) is returned after the summary is printed.
func runRepeated(
	ctx context.Context, cc *CLIContext, sess *session,
	method, path string, body []byte, opts []transport.RequestOption, n int,
) error {
	results := make([]repeatResult, n)

	var g errgroup.Group

	for i := range n {
		g.Go(func() error {
			resp, err := sess.client.Do(ctx, method, path, body, opts...)
			results[i] = repeatResult{resp: resp, err: err}

			return err
		})
	}

	firstErr := g.Wait()

	cc.Logger.Debug("repeat finished",
		slog.Int("calls", n),
		slog.Int("refresh_cycles", sess.client.Coordinator().Cycles()),
	)

	if cc.Flags.JSON {
		if err := printRepeatJSON(cc.Stdout, results); err != nil {
			return err
		}
	} else {
		printRepeatTable(cc.Stdout, results)
	}

	return firstErr
}

func printRepeatTable(w io.Writer, results []repeatResult) {
	rows := make([][]string, 0, len(results))

	for i, r := range results {
		status, requestID, detail := "-", "-", ""

		if r.resp != nil {
			status = strconv.Itoa(r.resp.StatusCode)
			requestID = orDash(r.resp.RequestID)
		}

		if r.err != nil {
			var te *transport.Error
			if errors.As(r.err, &te) {
				if te.StatusCode != 0 {
					status = strconv.Itoa(te.StatusCode)
				}

				requestID = orDash(te.RequestID)
				detail = te.Kind.String()
			} else {
				detail = r.err.Error()
			}
		}

		rows = append(rows, []string{strconv.Itoa(i + 1), status, requestID, detail})
	}

	printTable(w, []string{"#", "STATUS", "REQUEST-ID", "ERROR"}, rows)
}

type repeatJSON struct {
	Status    int    `json:"status,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

func printRepeatJSON(w io.Writer, results []repeatResult) error {
	out := make([]repeatJSON, len(results))

	for i, r := range results {
		if r.resp != nil {
			out[i] = repeatJSON{Status: r.resp.StatusCode, RequestID: r.resp.RequestID}
		}

		if r.err != nil {
			out[i].Error = r.err.Error()
			out[i].Kind = transport.KindOf(r.err).String()

			var te *transport.Error
			if errors.As(r.err, &te) {
				out[i].Status = te.StatusCode
				out[i].RequestID = te.RequestID
			}
		}
	}

	return writeJSON(w, out)
}

// responseJSON is the --json envelope for a single response.
type responseJSON struct {
	Status    int             `json:"status"`
	RequestID string          `json:"requestId,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Text      string          `json:"text,omitempty"`
}

func printResponse(cc *CLIContext, resp *transport.Response) error {
	if cc.Flags.JSON {
		out := responseJSON{Status: resp.StatusCode, RequestID: resp.RequestID}

		if json.Valid(resp.Body) {
			out.Body = resp.Body
		} else if len(resp.Body) > 0 {
			out.Text = string(resp.Body)
		}

		return writeJSON(cc.Stdout, out)
	}

	cc.Statusf("HTTP %d (request-id: %s)\n", resp.StatusCode, orDash(resp.RequestID))

	if len(resp.Body) == 0 {
		return nil
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, resp.Body, "", "  ") == nil {
		pretty.WriteByte('\n')
		_, err := pretty.WriteTo(cc.Stdout)

		return err
	}

	_, err := cc.Stdout.Write(resp.Body)
	if err == nil && !bytes.HasSuffix(resp.Body, []byte("\n")) {
		_, err = io.WriteString(cc.Stdout, "\n")
	}

	return err
}

// readData resolves the --data flag: literal text, @path, or @- for stdin.
// An empty flag means no body.
func readData(data string, stdin io.Reader) ([]byte, error) {
	switch {
	case data == "":
		return nil, nil
	case data == "@-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading request body from stdin: %w", err)
		}

		return b, nil
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}

		return b, nil
	default:
		return []byte(data), nil
	}
}

// requestOptions converts --header, --query, and --timeout into transport options.
func requestOptions(rf *requestFlags) ([]transport.RequestOption, error) {
	var opts []transport.RequestOption

	for _, h := range rf.headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)

		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --header %q: want 'Name: value'", h)
		}

		opts = append(opts, transport.WithHeader(name, strings.TrimSpace(value)))
	}

	query := url.Values{}

	for _, q := range rf.query {
		key, value, ok := strings.Cut(q, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --query %q: want key=value", q)
		}

		query.Add(key, value)
	}

	if len(query) > 0 {
		opts = append(opts, transport.WithQuery(query))
	}

	if rf.timeout < 0 {
		return nil, fmt.Errorf("--timeout must not be negative")
	}

	if rf.timeout > 0 {
		opts = append(opts, transport.WithRequestTimeout(rf.timeout))
	}

	return opts, nil
}
