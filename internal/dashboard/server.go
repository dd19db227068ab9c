// Package dashboard streams engine events to WebSocket clients: task
// status flips as they are detected and view re-renders as they happen.
// It is a plain subscriber of the change broadcaster and a render sink
// for views; the engine core does not know it exists.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"tasklens/internal/bus"
)

// MessageType identifies a feed message.
type MessageType string

const (
	// MessageTypeStatus carries a single task's checkbox flip.
	MessageTypeStatus MessageType = "status_change"

	// MessageTypeRender carries a view's full re-rendered content.
	MessageTypeRender MessageType = "view_render"

	// MessageTypeRefresh signals that the whole vault may have changed.
	MessageTypeRefresh MessageType = "refresh"
)

// Message is one feed entry.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatusData is the payload of a status_change message.
type StatusData struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Done bool   `json:"done"`
}

// RenderData is the payload of a view_render message.
type RenderData struct {
	View    string `json:"view"`
	Content string `json:"content"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on; 0 picks a free port.
	Port int

	// Logger for server activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8991,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// Server accepts WebSocket clients and fans feed messages out to them.
type Server struct {
	addr     string
	listener net.Listener
	httpSrv  *http.Server
	logger   *log.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}

	feed    chan Message
	cancels []func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		logger:  config.Logger,
		clients: make(map[*websocket.Conn]struct{}),
		feed:    make(chan Message, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AttachBus subscribes the server to the change broadcaster so status
// flips and refresh signals reach connected clients.
func (s *Server) AttachBus(b *bus.Bus) {
	s.cancels = append(s.cancels,
		b.OnStatusChange(func(sc bus.StatusChange) {
			data, _ := json.Marshal(StatusData{Path: sc.Addr.Path, Line: sc.Addr.Line, Done: sc.Done})
			s.publish(Message{Type: MessageTypeStatus, Data: data})
		}),
		b.OnRefresh(func() {
			s.publish(Message{Type: MessageTypeRefresh})
		}),
	)
}

// RenderSink returns a render callback that forwards view content to
// clients; pass it to view.New.
func (s *Server) RenderSink() func(name, content string) {
	return func(name, content string) {
		data, _ := json.Marshal(RenderData{View: name, Content: content})
		s.publish(Message{Type: MessageTypeRender, Data: data})
	}
}

// Start begins listening and serving the feed.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.feedLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop unsubscribes, disconnects all clients and shuts the server down.
func (s *Server) Stop() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// publish queues a message, dropping it when the feed is saturated
// rather than blocking the engine.
func (s *Server) publish(msg Message) {
	select {
	case s.feed <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: feed full, dropping message")
	}
}

func (s *Server) feedLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.feed:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.drop(conn)
				}
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", n)

	// Drain client frames until disconnect; the feed is one-way.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.Read(s.ctx); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	n := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Printf("Client disconnected (total: %d)", n)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
