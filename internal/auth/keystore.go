// Package auth resolves usernames to authorized public keys and enforces
// the filesystem invariants that make a key file trustworthy: the file must
// be owned by the named user and writable by nobody else.
package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/ssh"

	"github.com/openGDA/gda-core-sub061/internal/logger"
)

// Authentication failure reasons. These are logged server-side for operator
// diagnosis; clients only ever see a generic rejection so that the specific
// failing check cannot be used for user enumeration.
var (
	ErrNoKeyFile      = errors.New("no authorized key file")
	ErrWrongOwner     = errors.New("key file not owned by user")
	ErrBadPermissions = errors.New("key file writable by others")
	ErrKeyMismatch    = errors.New("presented key does not match")
	ErrNoCredential   = errors.New("no usable credential")
)

// groupOtherWrite are the permission bits that must be clear on a key file.
const groupOtherWrite = 0o022

// record is a resolved per-username authenticator. A nil key marks a
// negative cache entry: resolution failed and will not be retried for the
// process lifetime (unless the key watcher invalidates it).
type record struct {
	username string
	path     string
	key      ssh.PublicKey
	reason   error
}

// KeyStore resolves and caches authorized-key records.
//
// Lookup precedence: <dir>/<username>.pub wins over
// <dir>/<beamline>/<username>.pub; the beamline file is only a fallback.
// Records are cached per username for the server process lifetime. With
// the watch option enabled, changes under the keys directory evict the
// affected cache entries; otherwise a stale key stays trusted until
// restart, which is the historical behavior.
type KeyStore struct {
	dir      string
	beamline string
	log      *logger.Logger

	cache sync.Map // username -> *record

	// ownerOf is injectable for tests that cannot chown files.
	ownerOf func(path string) (owner string, mode os.FileMode, err error)

	watcher *fsnotify.Watcher
}

// Option configures a KeyStore.
type Option func(*KeyStore)

// WithOwnerLookup replaces the file-owner resolution function.
func WithOwnerLookup(fn func(path string) (string, os.FileMode, error)) Option {
	return func(s *KeyStore) { s.ownerOf = fn }
}

// NewKeyStore creates a credential store over dir. An empty dir selects
// permissive mode: Authenticate accepts everyone, and the store says so
// loudly in the log because that is an operator-chosen state worth seeing.
func NewKeyStore(dir, beamline string, log *logger.Logger, opts ...Option) *KeyStore {
	if log == nil {
		log = logger.Global()
	}
	s := &KeyStore{
		dir:      dir,
		beamline: beamline,
		log:      log.WithPrefix("auth"),
		ownerOf:  fileOwner,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Permissive() {
		s.log.Warn("no authorized-keys directory configured: running in PERMISSIVE mode, all connections accepted")
	}
	return s
}

// Permissive reports whether the store accepts all connections.
func (s *KeyStore) Permissive() bool {
	return s.dir == ""
}

// WatchKeys starts evicting cached credentials when key files change on
// disk. Without it the cache is permanent for the process lifetime.
func (s *KeyStore) WatchKeys() error {
	if s.Permissive() || s.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create key watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	if s.beamline != "" {
		// The subdirectory may not exist yet; that is fine.
		_ = watcher.Add(filepath.Join(s.dir, s.beamline))
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if strings.HasSuffix(name, ".pub") {
					username := strings.TrimSuffix(name, ".pub")
					if _, evicted := s.cache.LoadAndDelete(username); evicted {
						s.log.Info("key file for %q changed, credential cache entry evicted", username)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("key watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the key watcher, if any.
func (s *KeyStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Authenticate checks the presented public key against the stored record
// for username. It fails closed: any missing file, ownership mismatch or
// permission violation rejects the connection. The returned error carries
// the specific reason for the server log; callers must not forward it to
// the client.
func (s *KeyStore) Authenticate(username string, presented ssh.PublicKey) error {
	if s.Permissive() {
		return nil
	}

	rec := s.resolve(username)
	if rec.key == nil {
		s.log.Warn("rejecting %q: %v", username, rec.reason)
		return rec.reason
	}

	if presented == nil || !bytes.Equal(rec.key.Marshal(), presented.Marshal()) {
		s.log.Warn("rejecting %q: %v", username, ErrKeyMismatch)
		return ErrKeyMismatch
	}
	return nil
}

// resolve returns the cached record for username, populating the cache on
// first use. Concurrent first lookups may both build a record; LoadOrStore
// keeps one and the duplicate is discarded, which is harmless.
func (s *KeyStore) resolve(username string) *record {
	if cached, ok := s.cache.Load(username); ok {
		return cached.(*record)
	}

	rec := s.load(username)
	actual, _ := s.cache.LoadOrStore(username, rec)
	return actual.(*record)
}

// load builds a record by trying the top-level key file first and the
// beamline subdirectory second.
func (s *KeyStore) load(username string) *record {
	paths := []string{filepath.Join(s.dir, username+".pub")}
	if s.beamline != "" {
		paths = append(paths, filepath.Join(s.dir, s.beamline, username+".pub"))
	}

	var firstErr error
	for _, path := range paths {
		rec, err := s.loadFile(username, path)
		if err == nil {
			s.log.Info("loaded authorized key for %q from %s", username, path)
			return rec
		}
		if firstErr == nil || errors.Is(firstErr, ErrNoKeyFile) {
			firstErr = err
		}
	}

	return &record{username: username, reason: fmt.Errorf("%w for %q: %w", ErrNoCredential, username, firstErr)}
}

// loadFile reads and validates one key file.
func (s *KeyStore) loadFile(username, path string) (*record, error) {
	owner, mode, err := s.ownerOf(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoKeyFile, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if owner != username {
		return nil, fmt.Errorf("%w: %s is owned by %q", ErrWrongOwner, path, owner)
	}
	if mode.Perm()&groupOtherWrite != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o", ErrBadPermissions, path, mode.Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key in %s: %w", path, err)
	}

	return &record{username: username, path: path, key: key}, nil
}

// fileOwner is the default owner lookup using the underlying stat.
func fileOwner(path string) (string, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", 0, fmt.Errorf("no stat information for %s", path)
	}
	uid := strconv.FormatUint(uint64(stat.Uid), 10)
	u, err := user.LookupId(uid)
	if err != nil {
		// No passwd entry; report the raw uid so the mismatch is
		// visible in the log.
		return "uid:" + uid, info.Mode(), nil
	}
	return u.Username, info.Mode(), nil
}
