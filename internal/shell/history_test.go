package shell

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHistoryInMemory(t *testing.T) {
	h, err := OpenFileHistory("")
	require.NoError(t, err)
	defer h.Close()

	h.Add("first")
	h.Add("second")

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "second", h.At(0))
	assert.Equal(t, "first", h.At(1))
	assert.Equal(t, "", h.At(2))
	assert.Equal(t, "", h.At(-1))
}

func TestFileHistorySkipsBlanksAndDuplicates(t *testing.T) {
	h, err := OpenFileHistory("")
	require.NoError(t, err)
	defer h.Close()

	h.Add("")
	h.Add("scan()")
	h.Add("scan()")
	h.Add("pos()")
	h.Add("scan()")

	assert.Equal(t, 3, h.Len(), "blank and consecutive duplicate entries must be dropped")
	assert.Equal(t, "scan()", h.At(0))
	assert.Equal(t, "pos()", h.At(1))
}

func TestFileHistoryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "commands")

	h, err := OpenFileHistory(path)
	require.NoError(t, err)
	h.Add("print(1)")
	h.Add("print(2)")
	require.NoError(t, h.Close())

	reopened, err := OpenFileHistory(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, "print(2)", reopened.At(0))
	assert.Equal(t, "print(1)", reopened.At(1))
}
