package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonimelisma/raffle-client/internal/transport"
)

// refreshState is the part of the refresh coordinator reported on shutdown.
type refreshState interface {
	State() transport.State
	Pending() int
}

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. Requests see the cancellation and stop
// retrying; calls queued behind a credential refresh return as soon as it
// settles. rs may be nil when no client is open yet.
func shutdownContext(parent context.Context, logger *slog.Logger, rs refreshState) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, canceling requests", shutdownAttrs(sig, rs)...)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", shutdownAttrs(sig, rs)...)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// shutdownAttrs describes the signal and any refresh still in flight.
func shutdownAttrs(sig os.Signal, rs refreshState) []any {
	attrs := []any{slog.String("signal", sig.String())}

	if rs == nil {
		return attrs
	}

	attrs = append(attrs,
		slog.String("refresh_state", rs.State().String()),
		slog.Int("awaiting_refresh", rs.Pending()),
	)

	return attrs
}
