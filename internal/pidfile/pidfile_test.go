package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "gdaserver.pid")
	p := New(path)

	require.NoError(t, p.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, p.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdaserver.pid")
	// Our own pid is certainly alive.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644))

	err := New(path).Acquire()
	assert.Error(t, err)
}

func TestAcquireTakesOverStalePidfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdaserver.pid")
	// Pid 0 never names a live process.
	require.NoError(t, os.WriteFile(path, []byte("0"), 0644))

	assert.NoError(t, New(path).Acquire())
}

func TestReleaseWithoutAcquire(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "never-written.pid"))
	assert.NoError(t, p.Release())
}
