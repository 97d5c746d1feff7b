package shell

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readWithTimeout(t *testing.T, ir *interruptReader, n int) ([]byte, error) {
	t.Helper()
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, n)
		n, err := ir.Read(buf)
		ch <- result{data: buf[:n], err: err}
	}()
	select {
	case r := <-ch:
		return r.data, r.err
	case <-time.After(time.Second):
		t.Fatal("read did not return")
		return nil, nil
	}
}

func TestInterruptReaderPassesBytesThrough(t *testing.T) {
	pr, pw := io.Pipe()
	ir := newInterruptReader(pr)
	defer ir.Close()

	go pw.Write([]byte("hello"))

	data, err := readWithTimeout(t, ir, 16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestInterruptReaderTurnsCtrlCIntoError(t *testing.T) {
	pr, pw := io.Pipe()
	ir := newInterruptReader(pr)
	defer ir.Close()

	// Bytes typed before the interrupt belong to the aborted line and
	// must not surface afterwards.
	go pw.Write([]byte("abandoned\x03"))

	_, err := readWithTimeout(t, ir, 16)
	assert.ErrorIs(t, err, ErrInterrupted)

	go pw.Write([]byte("next"))
	data, err := readWithTimeout(t, ir, 16)
	require.NoError(t, err)
	assert.Equal(t, "next", string(data))
}

func TestInterruptReaderDropsQueuedChunksOnCtrlC(t *testing.T) {
	pr, pw := io.Pipe()
	ir := newInterruptReader(pr)
	defer ir.Close()

	// Each write lands in its own queued chunk before anyone reads.
	// Every byte ahead of the interrupt belongs to the aborted line,
	// queued chunks included.
	pw.Write([]byte("stale "))
	pw.Write([]byte("input"))
	pw.Write([]byte("\x03"))
	require.Eventually(t, func() bool { return len(ir.intr) == 1 },
		time.Second, time.Millisecond, "interrupt not signalled")

	_, err := readWithTimeout(t, ir, 16)
	assert.ErrorIs(t, err, ErrInterrupted)

	go pw.Write([]byte("fresh"))
	data, err := readWithTimeout(t, ir, 16)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestInterruptReaderAsyncInterrupt(t *testing.T) {
	pr, _ := io.Pipe()
	ir := newInterruptReader(pr)
	defer ir.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		ir.Interrupt()
	}()

	_, err := readWithTimeout(t, ir, 16)
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestInterruptReaderEOF(t *testing.T) {
	pr, pw := io.Pipe()
	ir := newInterruptReader(pr)
	defer ir.Close()

	pw.CloseWithError(io.EOF)

	_, err := readWithTimeout(t, ir, 16)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCommonPrefix(t *testing.T) {
	testCases := []struct {
		name       string
		candidates []Candidate
		want       string
	}{
		{"empty", nil, ""},
		{"single", []Candidate{{Value: "scan"}}, "scan"},
		{"shared prefix", []Candidate{{Value: "scannable"}, {Value: "scan"}, {Value: "scanner"}}, "scan"},
		{"no shared prefix", []Candidate{{Value: "abs"}, {Value: "pos"}}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, commonPrefix(tc.candidates))
		})
	}
}
