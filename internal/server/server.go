// Package server hosts the transport listeners (SSH, telnet, websocket)
// and the supervisor that owns their lifecycle. Each accepted connection
// is authenticated first, then handed a dedicated session goroutine; the
// listeners stay free to accept further connections.
package server

import (
	"context"
	"net"
	"time"

	"golang.org/x/term"

	"github.com/openGDA/gda-core-sub061/internal/audit"
	"github.com/openGDA/gda-core-sub061/internal/broadcast"
	"github.com/openGDA/gda-core-sub061/internal/interp"
	"github.com/openGDA/gda-core-sub061/internal/logger"
	"github.com/openGDA/gda-core-sub061/internal/shell"
)

// Deps are the shared collaborators every listener hands to the sessions
// it spawns. One instance serves the whole server; the interpreter and the
// broadcast registries are process-wide.
type Deps struct {
	Interp     interp.Interpreter
	Registry   *broadcast.Registry
	Scans      *broadcast.ScanFeed
	Audit      *audit.Store
	Translator interp.Translator
	History    term.History
	Version    string
	Log        *logger.Logger

	// ReadTimeout is the per-connection idle read limit. Zero means no
	// limit; dead connections are then only detected by write failures.
	ReadTimeout time.Duration
}

// idleConn bumps the read deadline before every read so an idle connection
// eventually errors out instead of holding a session forever.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// withIdleTimeout wraps conn with the Deps read timeout, if one is set.
func (d *Deps) withIdleTimeout(conn net.Conn) net.Conn {
	if d.ReadTimeout <= 0 {
		return conn
	}
	return &idleConn{Conn: conn, timeout: d.ReadTimeout}
}

func (d *Deps) logger() *logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.Global()
}

// newSession builds a session over t for the given username.
func (d *Deps) newSession(t shell.Terminal, username string) *shell.Session {
	return shell.NewSession(shell.SessionConfig{
		Terminal:   t,
		Interp:     d.Interp,
		Registry:   d.Registry,
		Scans:      d.Scans,
		Audit:      d.Audit,
		Translator: d.Translator,
		Username:   username,
		Version:    d.Version,
		Logger:     d.logger(),
	})
}

// runInteractive drives one interactive session to completion.
func (d *Deps) runInteractive(ctx context.Context, t shell.Terminal, username string) {
	session := d.newSession(t, username)
	if err := session.Init(); err != nil {
		d.logger().Error("session init failed: %v", err)
		session.Close()
		return
	}
	session.Run(ctx)
}

// execDrainDelay gives the interpreter output pump a moment to flush the
// final lines to an exec-mode connection before it closes.
const execDrainDelay = 50 * time.Millisecond
