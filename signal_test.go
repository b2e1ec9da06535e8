package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/raffle-client/internal/transport"
)

type fixedRefreshState struct {
	state   transport.State
	pending int
}

func (f fixedRefreshState) State() transport.State { return f.state }
func (f fixedRefreshState) Pending() int           { return f.pending }

func TestShutdownContext_FirstSignalCancels(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf}, nil))
	ctx := shutdownContext(parent, logger, fixedRefreshState{state: transport.StateRefreshing, pending: 2})

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}

	// Stop the goroutine before reading the log.
	cancel()

	assert.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("refresh_state=refreshing"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownContext_ParentCancelStopsGoroutine(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := shutdownContext(parent, logger, nil)

	// Cancelling the parent cancels the derived context.
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}

func TestShutdownAttrs(t *testing.T) {
	attrs := shutdownAttrs(syscall.SIGTERM, nil)
	assert.Equal(t, []any{slog.String("signal", "terminated")}, attrs)

	attrs = shutdownAttrs(syscall.SIGINT, fixedRefreshState{state: transport.StateIdle})
	assert.Equal(t, []any{
		slog.String("signal", "interrupt"),
		slog.String("refresh_state", "idle"),
		slog.Int("awaiting_refresh", 0),
	}, attrs)
}
