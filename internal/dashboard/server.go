// Package dashboard serves a live feed of committed changes.
//
// Clients connect to /ws and receive one JSON message per event plus a
// stats message after every task change. /health, /metrics and /api/stats
// are plain HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tasklattice/tasklattice/internal/logging"
	"github.com/tasklattice/tasklattice/internal/types"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeTaskUpdate carries a task change
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeListUpdate carries a list change
	MessageTypeListUpdate MessageType = "list_update"

	// MessageTypeEvent carries any other entity change
	MessageTypeEvent MessageType = "event"

	// MessageTypeStats carries task counts by status
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatsSource counts live tasks by status. *search.Composer implements it.
type StatsSource interface {
	GetTaskCountByStatus(ctx context.Context, listID *int64) (map[types.Status]int, error)
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	router   *gin.Engine

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log     logrus.FieldLogger
	stats   StatsSource
	counter *Counter
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on; 0 picks a free port
	Port int

	Logger logrus.FieldLogger

	// Stats feeds /api/stats and the stats messages. Optional.
	Stats StatsSource
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{Port: 8080}
}

// NewServer creates a new dashboard server. Call Start to listen.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:      net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		log:       logging.OrNop(cfg.Logger).WithField("component", "dashboard"),
		stats:     cfg.Stats,
		counter:   NewCounter(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.handleRoot)
	r.GET("/ws", s.handleWebSocket)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/stats", s.handleStats)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

// Handler returns the HTTP routes without listening.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins the HTTP server and the broadcast loop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.WithField("addr", ln.Addr().String()).Info("dashboard listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("dashboard server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.log.Info("dashboard stopped")
	return nil
}

// Broadcast queues a message for every connected client. It drops the
// message when the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.log.WithField("type", msg.Type).Warn("broadcast queue full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			s.send(msg)
			if msg.Type == MessageTypeTaskUpdate {
				if stats, err := s.statsMessage(s.ctx); err == nil {
					s.send(stats)
				} else {
					s.log.WithError(err).Warn("failed to compute stats")
				}
			}
		}
	}
}

func (s *Server) send(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal message")
		return
	}

	s.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		clients = append(clients, conn)
	}
	s.clientsMu.RUnlock()

	for _, conn := range clients {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.log.WithError(err).Debug("failed to send to client")
			s.removeClient(conn)
		}
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.log.WithField("clients", count).Info("client connected")

	// The first frame is a stats snapshot.
	welcome, err := s.statsMessage(c.Request.Context())
	if err != nil {
		welcome = Message{Type: MessageTypeStats, Timestamp: time.Now().UTC()}
	}
	data, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, data)
	cancel()

	go s.readLoop(conn)
}

// readLoop drains client frames until the connection closes.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.log.WithField("clients", count).Info("client disconnected")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": types.KindOf(err), "message": types.MessageOf(err)}})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html>
<head><title>tasklattice dashboard</title></head>
<body>
  <h1>tasklattice dashboard</h1>
  <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
  <p><a href="/health">/health</a> <a href="/api/stats">/api/stats</a> <a href="/metrics">/metrics</a></p>
</body>
</html>`, c.Request.Host)
}

// StatsData is the payload of stats messages and /api/stats.
type StatsData struct {
	Total    int                       `json:"total"`
	ByStatus map[types.Status]int      `json:"by_status"`
	Events   map[string]map[string]int `json:"events"`
}

// Stats reports status counts from the stats source and the event counters.
func (s *Server) Stats(ctx context.Context) (*StatsData, error) {
	out := &StatsData{ByStatus: map[types.Status]int{}, Events: s.counter.Snapshot()}
	if s.stats == nil {
		return out, nil
	}
	counts, err := s.stats.GetTaskCountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	for st, n := range counts {
		out.ByStatus[st] = n
		out.Total += n
	}
	return out, nil
}

func (s *Server) statsMessage(ctx context.Context) (Message, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Message{}, err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now().UTC(), Data: data}, nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
