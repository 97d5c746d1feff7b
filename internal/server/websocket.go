package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openGDA/gda-core-sub061/internal/auth"
	"github.com/openGDA/gda-core-sub061/internal/logger"
	"github.com/openGDA/gda-core-sub061/internal/shell"
)

// WebsocketListener serves browser terminals: each websocket carries the
// same byte stream an SSH channel would, framed as binary messages. Like
// telnet it has no verifiable credential, so it only runs against a
// permissive key store.
type WebsocketListener struct {
	addr string
	keys *auth.KeyStore
	deps *Deps
	log  *logger.Logger

	mu     sync.Mutex
	server *http.Server
}

func NewWebsocketListener(port int, keys *auth.KeyStore, deps *Deps) *WebsocketListener {
	return &WebsocketListener{
		addr: fmt.Sprintf(":%d", port),
		keys: keys,
		deps: deps,
		log:  deps.logger().WithPrefix("websocket"),
	}
}

func (l *WebsocketListener) Name() string {
	return "websocket" + l.addr
}

func (l *WebsocketListener) Start(ctx context.Context) error {
	if !l.keys.Permissive() {
		return errors.New("websocket requires a permissive key store; refusing to start with authentication configured")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Terminals are beamline-local tooling; the transport does not
		// carry cross-site credentials.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/terminal", func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.URL.Query().Get("user"))
		if username == "" {
			http.Error(w, "user query parameter is required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			l.log.Error("upgrade failed: %v", err)
			return
		}
		l.handleConn(ctx, conn, username)
	})

	listener, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	server := &http.Server{Handler: mux}

	l.mu.Lock()
	l.server = server
	l.mu.Unlock()

	l.log.Info("listening on %s", listener.Addr())

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.log.Error("serve failed: %v", err)
		}
	}()
	return nil
}

func (l *WebsocketListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.server != nil {
		return l.server.Close()
	}
	return nil
}

func (l *WebsocketListener) handleConn(ctx context.Context, conn *websocket.Conn, username string) {
	defer conn.Close()

	ws := &wsStream{conn: conn, readTimeout: l.deps.ReadTimeout}
	t := shell.NewTerminal(ws, l.deps.History)
	defer t.Close()

	l.log.Info("connection from %s as %q", conn.RemoteAddr(), username)
	l.deps.runInteractive(ctx, t, username)
}

// wsStream presents a websocket as an io.ReadWriter: reads drain binary
// messages, writes send one binary message each.
type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex
}

func (w *wsStream) Read(p []byte) (int, error) {
	w.readMu.Lock()
	defer w.readMu.Unlock()
	for len(w.pending) == 0 {
		if w.readTimeout > 0 {
			if err := w.conn.SetReadDeadline(time.Now().Add(w.readTimeout)); err != nil {
				return 0, err
			}
		}
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.pending = data
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsStream) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
