package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FilePerms restricts the credentials file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the file's parent directory.
const DirPerms = 0o700

const (
	defaultLockTimeout = 2 * time.Second
	lockRetryInterval  = 10 * time.Millisecond
)

// ErrLockTimeout is returned when another process holds the file lock for
// longer than the lock timeout.
var ErrLockTimeout = errors.New("kvstore: timed out waiting for file lock")

// fileDocument is the on-disk format.
type fileDocument struct {
	Keys map[string]string `json:"keys"`
}

// File stores keys in a JSON document on disk. Every operation takes an
// exclusive flock on a sibling ".lock" file, so several processes can share
// one credentials file. Writes go to a temp file that is renamed into place.
type File struct {
	mu          sync.Mutex // flock does not exclude goroutines sharing one handle
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
}

// NewFile returns a File backend at path. The file is created on first write.
func NewFile(path string) *File {
	return &File{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: defaultLockTimeout,
	}
}

// Path returns the credentials file path.
func (f *File) Path() string {
	return f.path
}

// ReadKey returns the value stored under name.
func (f *File) ReadKey(name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)

	err := f.locked(func() error {
		doc, err := f.load()
		if err != nil {
			return err
		}

		value, ok = doc.Keys[name]

		return nil
	})

	return value, ok, err
}

// WriteKey stores value under name.
func (f *File) WriteKey(name, value string) error {
	return f.locked(func() error {
		doc, err := f.load()
		if err != nil {
			return err
		}

		doc.Keys[name] = value

		return f.save(doc)
	})
}

// DeleteKey removes name. Missing keys are not an error.
func (f *File) DeleteKey(name string) error {
	return f.locked(func() error {
		doc, err := f.load()
		if err != nil {
			return err
		}

		if _, ok := doc.Keys[name]; !ok {
			return nil
		}

		delete(doc.Keys, name)

		return f.save(doc)
	})
}

func (f *File) locked(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), DirPerms); err != nil {
		return fmt.Errorf("kvstore: creating directory for %s: %w", f.path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.lockTimeout)
	defer cancel()

	ok, err := f.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, f.lock.Path())
		}

		return fmt.Errorf("kvstore: locking %s: %w", f.lock.Path(), err)
	}

	if !ok {
		return fmt.Errorf("%w: %s", ErrLockTimeout, f.lock.Path())
	}

	defer func() { _ = f.lock.Unlock() }()

	return fn()
}

// load reads the document. A missing file is an empty document.
func (f *File) load() (*fileDocument, error) {
	doc := &fileDocument{Keys: make(map[string]string)}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}

	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", f.path, err)
	}

	if len(data) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("kvstore: decoding %s: %w", f.path, err)
	}

	if doc.Keys == nil {
		doc.Keys = make(map[string]string)
	}

	return doc, nil
}

// save writes the document atomically (write-to-temp + rename) with 0600
// permissions. The caller holds the lock.
func (f *File) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("kvstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("kvstore: renaming: %w", err)
	}

	success = true

	return nil
}
