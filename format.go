package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tonimelisma/raffle-client/internal/transport"
)

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// formatExpiry describes exp relative to now, e.g. "in 59m" or "expired 3m ago".
func formatExpiry(exp, now time.Time) string {
	d := exp.Sub(now).Round(time.Second)
	if d > 0 {
		return "in " + shortDuration(d)
	}

	return "expired " + shortDuration(-d) + " ago"
}

// shortDuration renders d at minute granularity once it exceeds a minute.
func shortDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// printError writes err for a human. Transport errors show their
// user-facing message, field errors, and request id.
func printError(w io.Writer, err error) {
	var te *transport.Error
	if !errors.As(err, &te) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}

	msg := te.Message
	if msg == "" {
		msg = te.Error()
	}

	fmt.Fprintf(w, "Error: %s\n", msg)

	fields := make([]string, 0, len(te.FieldErrors))
	for f := range te.FieldErrors {
		fields = append(fields, f)
	}

	sort.Strings(fields)

	for _, f := range fields {
		for _, m := range te.FieldErrors[f] {
			fmt.Fprintf(w, "  %s: %s\n", f, m)
		}
	}

	if te.StatusCode != 0 {
		fmt.Fprintf(w, "  (%s %s: HTTP %d", te.Method, te.Path, te.StatusCode)

		if te.RequestID != "" {
			fmt.Fprintf(w, ", request-id %s", te.RequestID)
		}

		fmt.Fprintln(w, ")")
	}
}

// lockedWriter serializes writes from concurrent goroutines (notifiers,
// logger, status lines) onto one stream.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	return lw.w.Write(p)
}
