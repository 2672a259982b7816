// internal/transport/websocket.go
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// WebSocketConfig holds configuration for the websocket publisher.
type WebSocketConfig struct {
	// Addr is the listen address (from config: serve_addr)
	Addr string
	// Path is the websocket endpoint, default /ws
	Path string
	// Queue is the broadcast backlog; events beyond it are dropped
	Queue  int
	Logger *log.Logger
}

// WebSocket broadcasts events as JSON to every connected client.
type WebSocket struct {
	config    WebSocketConfig
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	server    *http.Server
	listener  net.Listener

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewWebSocket creates the publisher and starts its broadcast loop. Call
// Start to listen on Addr, or mount Handler on an existing server.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Queue < 1 {
		cfg.Queue = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	w := &WebSocket{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, cfg.Queue),
		done:      make(chan struct{}),
	}
	go w.handleBroadcasts()
	return w
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (w *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.config.Path, w.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (w *WebSocket) Start() error {
	ln, err := net.Listen("tcp", w.config.Addr)
	if err != nil {
		return err
	}
	w.listener = ln
	w.server = &http.Server{Handler: w.Handler(), ReadHeaderTimeout: 5 * time.Second}
	w.config.Logger.Info("websocket server listening", "addr", ln.Addr().String(), "path", w.config.Path)

	go func() {
		if err := w.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.config.Logger.Error("websocket server failed", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address once Start has succeeded.
func (w *WebSocket) Addr() string {
	if w.listener == nil {
		return w.config.Addr
	}
	return w.listener.Addr().String()
}

func (w *WebSocket) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.config.Logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	w.clientsMu.Lock()
	w.clients[conn] = struct{}{}
	n := len(w.clients)
	w.clientsMu.Unlock()
	w.config.Logger.Debug("client connected", "remote", conn.RemoteAddr().String(), "clients", n)

	go func() {
		// clients never send; any read result means the peer went away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				w.drop(conn)
				return
			}
		}
	}()
}

func (w *WebSocket) drop(conn *websocket.Conn) {
	w.clientsMu.Lock()
	_, ok := w.clients[conn]
	delete(w.clients, conn)
	n := len(w.clients)
	w.clientsMu.Unlock()
	if ok {
		_ = conn.Close()
		w.config.Logger.Debug("client disconnected", "clients", n)
	}
}

func (w *WebSocket) handleBroadcasts() {
	for {
		select {
		case <-w.done:
			return
		case data := <-w.broadcast:
			w.clientsMu.Lock()
			for client := range w.clients {
				if err := client.WriteJSON(data); err != nil {
					w.config.Logger.Warn("websocket send failed", "remote", client.RemoteAddr().String(), "err", err)
					_ = client.Close()
					delete(w.clients, client)
				}
			}
			w.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. A full queue drops the event.
func (w *WebSocket) Send(data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.broadcast <- data:
	default:
		w.dropped++
	}
	return nil
}

// Clients returns the number of connected clients.
func (w *WebSocket) Clients() int {
	w.clientsMu.Lock()
	defer w.clientsMu.Unlock()
	return len(w.clients)
}

// Close disconnects all clients and shuts the server down.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	dropped := w.dropped
	w.mu.Unlock()
	close(w.done)

	w.clientsMu.Lock()
	for client := range w.clients {
		_ = client.Close()
	}
	w.clients = make(map[*websocket.Conn]struct{})
	w.clientsMu.Unlock()

	if dropped > 0 {
		w.config.Logger.Warn("websocket dropped events", "events", dropped)
	}
	if w.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return w.server.Shutdown(ctx)
}

var _ Transport = (*WebSocket)(nil)
