package main

import (
	"errors"
	"os"

	"github.com/tonimelisma/raffle-client/internal/transport"
)

// Exit codes. Authentication failures get their own code so scripts can
// tell "log in again" apart from other failures.
const (
	exitFailure      = 1
	exitUnauthorized = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, transport.ErrUnauthenticated) {
		return exitUnauthorized
	}

	return exitFailure
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	printError(os.Stderr, err)
	os.Exit(exitCode(err))
}
