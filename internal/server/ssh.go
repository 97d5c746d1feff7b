package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/openGDA/gda-core-sub061/internal/auth"
	"github.com/openGDA/gda-core-sub061/internal/interp"
	"github.com/openGDA/gda-core-sub061/internal/logger"
	"github.com/openGDA/gda-core-sub061/internal/shell"
)

// SSHListener accepts SSH connections, authenticates them against the key
// store, and runs one session goroutine per connection. Shell requests get
// the full interactive loop; exec requests submit a single statement and
// close with an exit status.
type SSHListener struct {
	addr        string
	hostKeyPath string
	keys        *auth.KeyStore
	deps        *Deps
	log         *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	config   *ssh.ServerConfig
}

// NewSSHListener creates the listener. Nothing binds until Start.
func NewSSHListener(port int, hostKeyPath string, keys *auth.KeyStore, deps *Deps) *SSHListener {
	return &SSHListener{
		addr:        fmt.Sprintf(":%d", port),
		hostKeyPath: hostKeyPath,
		keys:        keys,
		deps:        deps,
		log:         deps.logger().WithPrefix("ssh"),
	}
}

// Name identifies the listener in supervisor logs.
func (l *SSHListener) Name() string {
	return "ssh" + l.addr
}

// Start binds the port and begins accepting connections.
func (l *SSHListener) Start(ctx context.Context) error {
	hostKey, err := loadOrCreateHostKey(l.hostKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load host key: %w", err)
	}

	config := &ssh.ServerConfig{
		// The callback rejects with a deliberately generic error; the
		// specific failing check stays in the server log so clients
		// cannot probe which usernames exist.
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if err := l.keys.Authenticate(meta.User(), key); err != nil {
				return nil, errors.New("authentication failed")
			}
			return nil, nil
		},
		NoClientAuth: l.keys.Permissive(),
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.listener = listener
	l.config = config
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

// Stop closes the accept loop. In-flight sessions drain on their own.
func (l *SSHListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

func (l *SSHListener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn = l.deps.withIdleTimeout(conn)

	l.mu.Lock()
	config := l.config
	l.mu.Unlock()

	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		// Includes failed authentication; the key store already
		// logged the specific reason.
		l.log.Info("handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			l.log.Error("failed to accept channel: %v", err)
			continue
		}
		go l.handleSession(ctx, sconn.User(), channel, requests)
	}
}

type ptyRequest struct {
	Term          string
	Columns, Rows uint32
	Width, Height uint32
	Modes         string
}

type windowChange struct {
	Columns, Rows uint32
	Width, Height uint32
}

type execRequest struct {
	Command string
}

type exitStatus struct {
	Status uint32
}

// handleSession services one session channel: request dispatch, then the
// interactive loop or a single exec.
func (l *SSHListener) handleSession(ctx context.Context, username string, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	t := shell.NewTerminal(channel, l.deps.History)
	defer t.Close()

	started := make(chan struct{})
	var once sync.Once

	var execCmd string

	go func() {
		for req := range requests {
			switch req.Type {
			case "pty-req":
				var pty ptyRequest
				if err := ssh.Unmarshal(req.Payload, &pty); err == nil {
					t.Resize(int(pty.Columns), int(pty.Rows))
				}
				req.Reply(true, nil)
			case "window-change":
				var wc windowChange
				if err := ssh.Unmarshal(req.Payload, &wc); err == nil {
					t.Resize(int(wc.Columns), int(wc.Rows))
				}
				if req.WantReply {
					req.Reply(true, nil)
				}
			case "env":
				req.Reply(true, nil)
			case "shell":
				req.Reply(true, nil)
				once.Do(func() { close(started) })
			case "exec":
				var ex execRequest
				if err := ssh.Unmarshal(req.Payload, &ex); err == nil {
					execCmd = ex.Command
				}
				req.Reply(true, nil)
				once.Do(func() { close(started) })
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}()

	select {
	case <-started:
	case <-ctx.Done():
		return
	case <-time.After(30 * time.Second):
		l.log.Warn("no shell or exec request from %q, closing channel", username)
		return
	}

	if execCmd != "" {
		status := l.execOnce(ctx, username, channel, execCmd)
		channel.SendRequest("exit-status", false, ssh.Marshal(exitStatus{Status: status}))
		return
	}

	l.deps.runInteractive(ctx, t, username)
	channel.SendRequest("exit-status", false, ssh.Marshal(exitStatus{Status: 0}))
}

// execWriter streams broadcast output to an exec-mode channel.
type execWriter struct {
	ch ssh.Channel
}

func (w *execWriter) WriteOutput(s string) error {
	_, err := w.ch.Write([]byte(s))
	return err
}

// execOnce submits a single command and reports its exit status: 0 for a
// completed execution, 1 for an incomplete statement or any failure. The
// continuation logic of the interactive loop is deliberately not used; a
// lone incomplete statement is a user-visible error here.
func (l *SSHListener) execOnce(ctx context.Context, username string, channel ssh.Channel, command string) uint32 {
	id := shell.NextID()
	l.deps.Registry.Register(id, &execWriter{ch: channel})
	defer l.deps.Registry.Deregister(id)

	l.deps.Audit.Record(id, username, command)

	err := l.deps.Interp.Execute(ctx, l.deps.Translator.Translate(command))
	time.Sleep(execDrainDelay)

	if errors.Is(err, interp.ErrIncomplete) {
		fmt.Fprintf(channel.Stderr(), "Incomplete Command: %s\n", command)
		return 1
	}
	if err != nil {
		fmt.Fprintf(channel.Stderr(), "Command failed: %v\n", err)
		return 1
	}
	return 0
}

// loadOrCreateHostKey reads the PEM host key at path, generating and
// persisting a new ed25519 key on first start.
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ssh.ParsePrivateKey(data)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create host key directory: %w", err)
	}
	if err := os.WriteFile(path, pemBytes, 0600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}

	return ssh.ParsePrivateKey(pemBytes)
}
