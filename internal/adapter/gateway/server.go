package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/middleware"
	"boardpilot/internal/usecase"
)

// CommandService is the slice of the engine the gateway needs.
type CommandService interface {
	SubmitCommand(ctx context.Context, req domain.CommandRequest) (*domain.ExecutionResult, error)
}

// ServerDeps holds the gateway server's collaborators.
type ServerDeps struct {
	Engine  CommandService
	Canvas  domain.CanvasStore
	Metrics *usecase.Metrics
	Hub     *ProgressHub
	Auth    Authenticator // nil means AllowAll
	Logger  *slog.Logger
	Version string
	// RateLimit caps HTTP requests per client IP. Zero RPS disables the
	// limiter entirely.
	RateLimit middleware.RateLimitConfig
}

// Server exposes the engine over HTTP: command submission and canvas reads
// under /api/v1, a Prometheus endpoint, and a websocket progress stream.
type Server struct {
	deps      ServerDeps
	addr      string
	httpSrv   *http.Server
	boundAddr string
	startTime time.Time
	conns     sync.Map // connID (uint64) -> *websocket.Conn
	nextConn  atomic.Uint64
}

// NewServer creates a gateway server listening on addr once started.
func NewServer(deps ServerDeps, addr string) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Auth == nil {
		deps.Auth = AllowAll{}
	}
	if deps.Metrics == nil {
		deps.Metrics = usecase.NewMetrics()
	}
	if deps.Hub == nil {
		deps.Hub = NewProgressHub(deps.Logger)
	}
	return &Server{deps: deps, addr: addr, startTime: time.Now()}
}

func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/canvases/{id}/commands", s.requireAuth(s.handleSubmitCommand))
	mux.HandleFunc("GET /api/v1/canvases/{id}/objects", s.requireAuth(s.handleListObjects))
	mux.HandleFunc("GET /api/v1/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("GET /metrics", s.requireAuth(s.handleMetrics))
	// The websocket route authenticates inside the handler, before upgrade.
	mux.HandleFunc("GET /api/v1/ws", s.handleWS)

	var handler http.Handler = mux
	if s.deps.RateLimit.RPS > 0 {
		handler = middleware.RateLimit(ctx, s.deps.RateLimit)(handler)
	}
	return middleware.SecurityHeaders(handler)
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.deps.Auth.Authenticate(requestToken(r)); err != nil {
			writeError(w, http.StatusUnauthorized, errorResponse{
				Error: "unauthorized",
				Code:  domain.ErrorCodeOf(err),
			})
			return
		}
		next(w, r)
	}
}

// Start begins serving. Blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{Handler: s.routes(ctx)}

	s.deps.Logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server, closing active progress streams.
func (s *Server) Stop(ctx context.Context) error {
	s.conns.Range(func(key, value any) bool {
		ws := value.(*websocket.Conn)
		ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.conns.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// handleWS upgrades to a websocket and streams job progress events. The
// optional canvas_id query parameter filters the stream to one canvas.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	client, err := s.deps.Auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	canvasID := r.URL.Query().Get("canvas_id")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.deps.Logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextConn.Add(1)
	s.conns.Store(connID, ws)
	subID, events := s.deps.Hub.Subscribe(canvasID)

	s.deps.Logger.Info("stream client connected", "conn_id", connID, "client", client.Name, "canvas_id", canvasID)

	defer func() {
		s.deps.Hub.Unsubscribe(subID)
		s.conns.Delete(connID)
		ws.Close(websocket.StatusNormalClosure, "")
		s.deps.Logger.Info("stream client disconnected", "conn_id", connID)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The stream is push-only; reading drains control frames and notices
	// when the client goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(ctx, ws, Event{Type: EventHello, CanvasID: canvasID, At: time.Now()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(ctx, ws, event); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, event Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, ws, event)
}
