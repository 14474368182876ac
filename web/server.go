package web

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jctechlabs/jarvis/chat"
	"github.com/jctechlabs/jarvis/threadpool"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// StatusSource supplies the status document served on /api/status.
type StatusSource interface {
	StatusSnapshot() any
}

// Server is the embedded chat endpoint: POST /api/chat queues a message as
// a correlation file, GET /api/status reports daemon state, and /ws is the
// WebSocket broadcast channel for replies, timeouts and late answers.
type Server struct {
	addr        string
	queueFolder string
	pool        *chat.MessagePool
	status      StatusSource
	log         *zap.SugaredLogger

	httpServer *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	stopped bool
}

// NewServer builds the server. SetMessagePool must be called before Start;
// the chat pool needs the server as its broadcaster, so the two are wired
// in two steps.
func NewServer(addr, queueFolder string, status StatusSource, log *zap.SugaredLogger) *Server {
	return &Server{
		addr:        addr,
		queueFolder: queueFolder,
		status:      status,
		log:         log,
		clients:     make(map[*websocket.Conn]struct{}),
	}
}

// SetMessagePool attaches the chat pool the chat endpoint allocates from.
func (s *Server) SetMessagePool(pool *chat.MessagePool) {
	s.pool = pool
}

// Start launches the server on a pool worker. The returned handle resolves
// when the server has shut down.
func (s *Server) Start(pool *threadpool.Pool) *threadpool.Handle {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChatPost)
	mux.HandleFunc("/api/status", s.handleStatusGet)
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	return pool.Submit(func() bool {
		s.log.Infow("web server started", "addr", s.addr)
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.log.Errorw("web server failed", "error", err)
			return false
		}
		return true
	})
}

// Stop shuts the server down. Broadcasts after Stop are dropped silently.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.log.Infow("web server stopped")
}

type chatRequest struct {
	Subsystem string `json:"subsystem"`
	Message   string `json:"message"`
}

// handleChatPost allocates a chat id and drops the message into the queue
// as a correlation file PROB_<id>_<ns>.txt under the subsystem folder. The
// watcher picks it up like any other requirement.
func (s *Server) handleChatPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Subsystem == "" || req.Message == "" {
		writeJSONError(w, http.StatusBadRequest, "subsystem and message are required")
		return
	}

	id := s.pool.Add(req.Subsystem, req.Message)
	timestamp := time.Now().UnixNano()
	dir := filepath.Join(s.queueFolder, req.Subsystem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("create subsystem folder: %v", err))
		return
	}
	filename := filepath.Join(dir, fmt.Sprintf("PROB_%d_%d.txt", id, timestamp))
	if err := os.WriteFile(filename, []byte(req.Message), 0o644); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("write message file: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "queued", "id": id, "file": filename})
}

func (s *Server) handleStatusGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status.StatusSnapshot())
}

// handleWebSocket keeps a client registered until it disconnects. Inbound
// frames are discarded; the socket is broadcast-only.
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Debugw("websocket client connected", "remote", conn.Request().RemoteAddr)

	var discard string
	for {
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
	s.log.Debugw("websocket client disconnected")
}

// BroadcastJSON sends a payload to every connected client. After Stop it is
// a silent no-op.
func (s *Server) BroadcastJSON(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for conn := range s.clients {
		if err := websocket.Message.Send(conn, payload); err != nil {
			s.log.Warnw("websocket send failed, dropping client", "error", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// ListenAddr returns the configured address, normalized for logging.
func (s *Server) ListenAddr() string {
	host, port, err := net.SplitHostPort(s.addr)
	if err != nil {
		return s.addr
	}
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
