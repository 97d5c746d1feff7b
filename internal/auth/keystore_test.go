package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/openGDA/gda-core-sub061/internal/logger"
)

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.LevelNone, "", "test")
	require.NoError(t, err)
	return log
}

func generateKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return sshPub
}

func writeKeyFile(t *testing.T, path string, key ssh.PublicKey) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, ssh.MarshalAuthorizedKey(key), 0600))
}

// ownedBy pretends every key file belongs to the named user with the mode
// the file really has on disk, since tests cannot chown.
func ownedBy(owner string) func(path string) (string, os.FileMode, error) {
	return func(path string) (string, os.FileMode, error) {
		info, err := os.Stat(path)
		if err != nil {
			return "", 0, err
		}
		return owner, info.Mode(), nil
	}
}

func TestKeyStorePermissiveMode(t *testing.T) {
	s := NewKeyStore("", "", quietLogger(t))
	assert.True(t, s.Permissive())
	assert.NoError(t, s.Authenticate("anyone", nil))
}

func TestKeyStoreAcceptsMatchingKey(t *testing.T) {
	dir := t.TempDir()
	key := generateKey(t)
	writeKeyFile(t, filepath.Join(dir, "alice.pub"), key)

	s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	assert.False(t, s.Permissive())
	assert.NoError(t, s.Authenticate("alice", key))
}

func TestKeyStoreRejectsMismatchedKey(t *testing.T) {
	dir := t.TempDir()
	writeKeyFile(t, filepath.Join(dir, "alice.pub"), generateKey(t))

	s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	err := s.Authenticate("alice", generateKey(t))
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestKeyStoreRejectsUnknownUser(t *testing.T) {
	s := NewKeyStore(t.TempDir(), "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	err := s.Authenticate("mallory", generateKey(t))
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.ErrorIs(t, err, ErrNoKeyFile)
}

// A key file owned by someone other than the named user is never trusted.
func TestKeyStoreRejectsWrongOwner(t *testing.T) {
	dir := t.TempDir()
	key := generateKey(t)
	writeKeyFile(t, filepath.Join(dir, "alice.pub"), key)

	s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("bob")))
	err := s.Authenticate("alice", key)
	assert.ErrorIs(t, err, ErrWrongOwner)
}

// A group- or world-writable key file is never trusted, even when the key
// matches.
func TestKeyStoreRejectsWritableKeyFile(t *testing.T) {
	for _, mode := range []os.FileMode{0620, 0602, 0666} {
		dir := t.TempDir()
		key := generateKey(t)
		path := filepath.Join(dir, "alice.pub")
		writeKeyFile(t, path, key)
		require.NoError(t, os.Chmod(path, mode))

		s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
		err := s.Authenticate("alice", key)
		assert.ErrorIs(t, err, ErrBadPermissions, "mode %04o must be rejected", mode)
	}
}

// The top-level key file wins over the beamline subdirectory file.
func TestKeyStoreTopLevelPrecedence(t *testing.T) {
	dir := t.TempDir()
	topKey := generateKey(t)
	beamKey := generateKey(t)
	writeKeyFile(t, filepath.Join(dir, "alice.pub"), topKey)
	writeKeyFile(t, filepath.Join(dir, "i18", "alice.pub"), beamKey)

	s := NewKeyStore(dir, "i18", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	assert.NoError(t, s.Authenticate("alice", topKey))
	assert.ErrorIs(t, s.Authenticate("alice", beamKey), ErrKeyMismatch)
}

func TestKeyStoreBeamlineFallback(t *testing.T) {
	dir := t.TempDir()
	key := generateKey(t)
	writeKeyFile(t, filepath.Join(dir, "i18", "alice.pub"), key)

	s := NewKeyStore(dir, "i18", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	assert.NoError(t, s.Authenticate("alice", key))
}

// Resolution results are cached: deleting the key file after a successful
// authentication does not revoke the credential for the process lifetime.
func TestKeyStoreCachesResolution(t *testing.T) {
	dir := t.TempDir()
	key := generateKey(t)
	path := filepath.Join(dir, "alice.pub")
	writeKeyFile(t, path, key)

	s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	require.NoError(t, s.Authenticate("alice", key))

	require.NoError(t, os.Remove(path))
	assert.NoError(t, s.Authenticate("alice", key), "cached credential must survive file removal")
}

// Failed resolutions are cached too: creating the key file after a failed
// attempt does not help until restart (or a key watcher eviction).
func TestKeyStoreCachesNegativeResolution(t *testing.T) {
	dir := t.TempDir()
	key := generateKey(t)

	s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	require.Error(t, s.Authenticate("alice", key))

	writeKeyFile(t, filepath.Join(dir, "alice.pub"), key)
	assert.Error(t, s.Authenticate("alice", key), "negative cache entry must persist")
}

func TestKeyStoreRejectsGarbageKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alice.pub")
	require.NoError(t, os.WriteFile(path, []byte("not a key\n"), 0600))

	s := NewKeyStore(dir, "", quietLogger(t), WithOwnerLookup(ownedBy("alice")))
	assert.Error(t, s.Authenticate("alice", generateKey(t)))
}
