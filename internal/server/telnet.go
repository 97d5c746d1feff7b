package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/openGDA/gda-core-sub061/internal/auth"
	"github.com/openGDA/gda-core-sub061/internal/logger"
	"github.com/openGDA/gda-core-sub061/internal/shell"
)

// Telnet protocol bytes. Only the negotiation subset needed to put the
// client into character mode is handled; everything else is stripped.
const (
	telnetIAC  = 255
	telnetDont = 254
	telnetDo   = 253
	telnetWont = 252
	telnetWill = 251
	telnetSB   = 250
	telnetSE   = 240
	telnetIP   = 244 // interrupt process

	telnetOptEcho = 1
	telnetOptSGA  = 3
)

// TelnetListener accepts plaintext telnet connections. Telnet has no
// credential a key store could verify, so the listener refuses to serve
// at all unless the store is permissive.
type TelnetListener struct {
	addr string
	keys *auth.KeyStore
	deps *Deps
	log  *logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

func NewTelnetListener(port int, keys *auth.KeyStore, deps *Deps) *TelnetListener {
	return &TelnetListener{
		addr: fmt.Sprintf(":%d", port),
		keys: keys,
		deps: deps,
		log:  deps.logger().WithPrefix("telnet"),
	}
}

func (l *TelnetListener) Name() string {
	return "telnet" + l.addr
}

func (l *TelnetListener) Start(ctx context.Context) error {
	if !l.keys.Permissive() {
		return errors.New("telnet requires a permissive key store; refusing to start with authentication configured")
	}

	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()

	l.log.Info("listening on %s", listener.Addr())

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					l.log.Error("accept failed: %v", err)
				}
				return
			}
			go l.handleConn(ctx, conn)
		}
	}()
	return nil
}

func (l *TelnetListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

func (l *TelnetListener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn = l.deps.withIdleTimeout(conn)

	// Server echoes, client suppresses go-ahead: character-at-a-time
	// mode, which the line editor needs.
	if _, err := conn.Write([]byte{
		telnetIAC, telnetWill, telnetOptEcho,
		telnetIAC, telnetWill, telnetOptSGA,
		telnetIAC, telnetDo, telnetOptSGA,
	}); err != nil {
		return
	}

	tc := newTelnetConn(conn)
	t := shell.NewTerminal(tc, l.deps.History)
	defer t.Close()

	username, err := t.AskLine("login: ")
	if err != nil {
		l.log.Info("login read from %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Fprintf(conn, "a username is required\r\n")
		return
	}

	l.log.Info("connection from %s as %q", conn.RemoteAddr(), username)
	l.deps.runInteractive(ctx, t, username)
}

// telnetConn adapts a raw telnet stream to a plain byte stream: reads
// strip IAC sequences and normalise line endings, writes escape 0xFF.
// An IAC IP (interrupt process) command is folded into an in-band 0x03
// so the terminal's interrupt scanning sees it like a Ctrl-C.
type telnetConn struct {
	conn io.ReadWriter
	buf  []byte
}

func newTelnetConn(conn io.ReadWriter) *telnetConn {
	return &telnetConn{conn: conn}
}

func (c *telnetConn) Read(p []byte) (int, error) {
	for {
		if len(c.buf) > 0 {
			n := copy(p, c.buf)
			c.buf = c.buf[n:]
			return n, nil
		}
		raw := make([]byte, len(p)+16)
		n, err := c.conn.Read(raw)
		if n > 0 {
			c.buf = c.filter(raw[:n])
		}
		if len(c.buf) == 0 && err != nil {
			return 0, err
		}
		// Any buffered bytes are served at the top of the loop; a
		// pending error resurfaces on the next underlying read.
	}
}

// filter strips telnet protocol bytes from one raw chunk. Sequences
// split across chunk boundaries are rare enough at interactive typing
// speed that unfinished trailing IAC bytes are simply dropped.
func (c *telnetConn) filter(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if b != telnetIAC {
			// CR LF and CR NUL both mean end of line on the wire.
			if b == '\r' && i+1 < len(raw) && (raw[i+1] == '\n' || raw[i+1] == 0) {
				i++
			}
			out = append(out, b)
			continue
		}
		if i+1 >= len(raw) {
			break
		}
		i++
		switch raw[i] {
		case telnetIAC:
			out = append(out, telnetIAC)
		case telnetWill, telnetWont, telnetDo, telnetDont:
			i++ // option byte
		case telnetIP:
			out = append(out, 0x03)
		case telnetSB:
			// Skip subnegotiation through IAC SE.
			for i+1 < len(raw) {
				i++
				if raw[i] == telnetIAC && i+1 < len(raw) && raw[i+1] == telnetSE {
					i++
					break
				}
			}
		default:
			// Other two-byte commands; drop.
		}
	}
	return out
}

func (c *telnetConn) Write(p []byte) (int, error) {
	escaped := make([]byte, 0, len(p))
	for _, b := range p {
		if b == telnetIAC {
			escaped = append(escaped, telnetIAC, telnetIAC)
			continue
		}
		escaped = append(escaped, b)
	}
	if _, err := c.conn.Write(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}
