package kvstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendKeyring = "keyring"
	BackendRedis   = "redis"
)

// Backends lists every name Open accepts.
var Backends = []string{BackendMemory, BackendFile, BackendSQLite, BackendKeyring, BackendRedis}

// Store is the method set shared by every backend.
type Store interface {
	ReadKey(name string) (string, bool, error)
	WriteKey(name, value string) error
	DeleteKey(name string) error
}

// Options selects and configures a backend.
type Options struct {
	Backend        string
	Path           string // file and sqlite
	KeyringService string
	RedisAddr      string
	RedisDB        int
	RedisPrefix    string
}

// Open constructs the backend named by opts.Backend. The returned close
// function is never nil.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), noop, nil

	case BackendFile:
		if opts.Path == "" {
			return nil, noop, fmt.Errorf("kvstore: file backend requires a path")
		}

		return NewFile(opts.Path), noop, nil

	case BackendSQLite:
		if opts.Path == "" {
			return nil, noop, fmt.Errorf("kvstore: sqlite backend requires a path")
		}

		db, err := OpenSQLite(ctx, opts.Path, logger)
		if err != nil {
			return nil, noop, err
		}

		return db, db.Close, nil

	case BackendKeyring:
		return NewKeyring(opts.KeyringService), noop, nil

	case BackendRedis:
		r := NewRedis(opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, noop, err
		}

		return r, r.Close, nil

	default:
		return nil, noop, fmt.Errorf("kvstore: unknown backend %q", opts.Backend)
	}
}
