package server

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type byteStream struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (s *byteStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *byteStream) Write(p []byte) (int, error) { return s.out.Write(p) }

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out
		}
	}
}

func TestTelnetConnStripsNegotiation(t *testing.T) {
	raw := []byte{
		telnetIAC, telnetDo, telnetOptEcho,
		'h', 'i',
		telnetIAC, telnetWont, telnetOptSGA,
		'\r', '\n',
	}
	tc := newTelnetConn(&byteStream{in: bytes.NewReader(raw)})

	got := readAll(t, tc)
	assert.Equal(t, []byte("hi\r"), got)
}

func TestTelnetConnEscapedIAC(t *testing.T) {
	raw := []byte{'a', telnetIAC, telnetIAC, 'b'}
	tc := newTelnetConn(&byteStream{in: bytes.NewReader(raw)})

	got := readAll(t, tc)
	assert.Equal(t, []byte{'a', 0xFF, 'b'}, got)
}

// IAC IP arrives as an in-band Ctrl-C so the interrupt scanning in the
// terminal layer treats it like one.
func TestTelnetConnInterruptProcess(t *testing.T) {
	raw := []byte{'x', telnetIAC, telnetIP, 'y'}
	tc := newTelnetConn(&byteStream{in: bytes.NewReader(raw)})

	got := readAll(t, tc)
	assert.Equal(t, []byte{'x', 0x03, 'y'}, got)
}

func TestTelnetConnSkipsSubnegotiation(t *testing.T) {
	raw := []byte{
		'a',
		telnetIAC, telnetSB, 31, 0, 80, 0, 24, telnetIAC, telnetSE,
		'b',
	}
	tc := newTelnetConn(&byteStream{in: bytes.NewReader(raw)})

	got := readAll(t, tc)
	assert.Equal(t, []byte("ab"), got)
}

func TestTelnetConnNormalizesLineEndings(t *testing.T) {
	raw := []byte{'o', 'k', '\r', 0, 'g', 'o', '\r', '\n'}
	tc := newTelnetConn(&byteStream{in: bytes.NewReader(raw)})

	got := readAll(t, tc)
	assert.Equal(t, []byte("ok\rgo\r"), got)
}

func TestTelnetConnWriteEscapesIAC(t *testing.T) {
	stream := &byteStream{in: bytes.NewReader(nil)}
	tc := newTelnetConn(stream)

	n, err := tc.Write([]byte{'a', 0xFF, 'b'})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "write must report caller bytes, not wire bytes")
	assert.Equal(t, []byte{'a', telnetIAC, telnetIAC, 'b'}, stream.out.Bytes())
}

func TestTelnetConnPureNegotiationThenEOF(t *testing.T) {
	raw := []byte{telnetIAC, telnetWill, telnetOptEcho}
	tc := newTelnetConn(&byteStream{in: bytes.NewReader(raw)})

	buf := make([]byte, 8)
	_, err := tc.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
