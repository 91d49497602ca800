package agora

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/RobertWHurst/navaros"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

// maxResolveAttempts bounds how often a connection retries resolution when the
// Handler it found is destroyed before the socket could join it.
const maxResolveAttempts = 3

// shutdownTimeout bounds graceful HTTP shutdown in ListenAndServe.
const shutdownTimeout = 5 * time.Second

// Config is the listener configuration of a Server.
type Config struct {
	// Port is the TCP port ListenAndServe listens on.
	Port int

	// PrefixPath is stripped from request paths before routing. Defaults to
	// "/".
	PrefixPath string

	// Routes are matched in order; the first match wins.
	Routes []*Route

	// Guards run, in order, for every new connection before routing.
	Guards []Guard

	// OnInit runs in ListenAndServe once the listener is bound, before any
	// connection is served. An error aborts ListenAndServe.
	OnInit func(ctx context.Context) error

	// OnConnect runs after a socket joined its Handler. A failure closes the
	// socket with the internal server error code.
	OnConnect func(ctx context.Context, socket *Socket, handler *Handler) error

	// ErrorFilter receives every failure not handled locally. Defaults to a
	// LogErrorFilter using Logger.
	ErrorFilter ErrorFilter

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *Metrics

	// Origins are the allowed origin patterns for the WebSocket handshake.
	// Defaults to []string{"*"}.
	Origins []string
}

// Server accepts connections, resolves each one to the Handler of its path,
// and attaches the socket to that Handler. It implements http.Handler for use
// with Go's standard HTTP servers, and can also be used as middleware with
// Navaros.
type Server struct {
	port        int
	prefixPath  string
	routes      []*Route
	guards      []Guard
	onInit      func(ctx context.Context) error
	onConnect   func(ctx context.Context, socket *Socket, handler *Handler) error
	errorFilter ErrorFilter
	logger      *slog.Logger
	metrics     *Metrics
	origins     []string

	mu       sync.Mutex
	handlers map[string]*Handler
	creating map[string]chan struct{}
}

var _ http.Handler = &Server{}

// NewServer validates config and creates a Server. Every route must have a
// valid pattern and a handler factory.
func NewServer(config Config) (*Server, error) {
	for i, route := range config.Routes {
		if route == nil {
			return nil, fmt.Errorf("route %d is nil", i)
		}
		if _, err := route.Pattern(); err != nil {
			return nil, fmt.Errorf("invalid route pattern %q: %w", route.Path, err)
		}
		if route.Handler == nil {
			return nil, fmt.Errorf("route %q has no handler factory", route.Path)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorFilter := config.ErrorFilter
	if errorFilter == nil {
		errorFilter = LogErrorFilter{Logger: logger}
	}
	origins := config.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		port:        config.Port,
		prefixPath:  normalizePrefix(config.PrefixPath),
		routes:      config.Routes,
		guards:      config.Guards,
		onInit:      config.OnInit,
		onConnect:   config.OnConnect,
		errorFilter: errorFilter,
		logger:      logger,
		metrics:     config.Metrics,
		origins:     origins,
		handlers:    map[string]*Handler{},
		creating:    map[string]chan struct{}{},
	}, nil
}

// MustNewServer is like NewServer but panics on an invalid config.
func MustNewServer(config Config) *Server {
	server, err := NewServer(config)
	if err != nil {
		panic(err)
	}
	return server
}

// ServeHTTP implements the http.Handler interface. It handles WebSocket
// upgrade requests; any other request gets a 400 Bad Request.
func (s *Server) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if s.isWebsocketUpgradeRequest(req) {
		s.handleWebsocketConnection(res, req)
		return
	}
	res.WriteHeader(http.StatusBadRequest)
	_, _ = res.Write([]byte("Bad Request. Expected websocket upgrade request"))
}

// Middleware returns a Navaros middleware function that handles WebSocket
// upgrade requests. Other requests are passed to the next handler in the
// Navaros chain.
func (s *Server) Middleware() navaros.HandlerFunc {
	return func(ctx *navaros.Context) {
		if s.isWebsocketUpgradeRequest(ctx.Request()) {
			navaros.CtxInhibitResponse(ctx)
			s.handleWebsocketConnection(ctx.ResponseWriter(), ctx.Request())
			return
		}
		ctx.Next()
	}
}

// HandleConnection drives the full lifecycle of a connection over a custom
// SocketConnection: admission, routing, attach, and the event loop. It
// returns once the socket has closed and left its Handler.
func (s *Server) HandleConnection(info *ConnectionInfo, connection SocketConnection) {
	s.handleConnection(context.Background(), info, connection)
}

// ListenAndServe listens on the configured port and serves until ctx is
// cancelled, then closes every socket and shuts the HTTP server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is like ListenAndServe but uses an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.onInit != nil {
		if err := execWithRecovery(func() error { return s.onInit(ctx) }); err != nil {
			_ = listener.Close()
			return &HookError{Hook: "init", Path: s.prefixPath, Err: err}
		}
	}
	s.logger.Info("websocket server listening", "addr", listener.Addr().String(), "prefix", s.prefixPath)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.CloseAll(StatusGoingAway, "server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// CloseAll closes every pooled socket of every Handler.
func (s *Server) CloseAll(status Status, reason string) {
	for _, handler := range s.Handlers() {
		for _, socket := range handler.Sockets() {
			_ = socket.CloseWithStatus(status, reason)
		}
	}
}

// Lookup returns the live Handler for a request path, if any. The path is
// normalized the same way incoming connections are.
func (s *Server) Lookup(path string) (*Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handler, ok := s.handlers[NormalizePath(s.prefixPath, path)]
	return handler, ok
}

// Handlers returns a snapshot of the live Handlers.
func (s *Server) Handlers() []*Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	handlers := make([]*Handler, 0, len(s.handlers))
	for _, handler := range s.handlers {
		handlers = append(handlers, handler)
	}
	return handlers
}

// RouteDescriptors returns a descriptor for every declared route, in
// declaration order.
func (s *Server) RouteDescriptors() []*RouteDescriptor {
	descriptors := make([]*RouteDescriptor, 0, len(s.routes))
	for _, route := range s.routes {
		pattern, _ := route.Pattern()
		descriptors = append(descriptors, &RouteDescriptor{Pattern: pattern})
	}
	return descriptors
}

func (s *Server) isWebsocketUpgradeRequest(req *http.Request) bool {
	return req.Header.Get("Upgrade") == "websocket"
}

func (s *Server) handleWebsocketConnection(res http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(res, req, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		reportError(s.errorFilter, fmt.Errorf("failed to accept websocket connection: %w", err), nil)
		return
	}

	info := &ConnectionInfo{
		RemoteAddr: req.RemoteAddr,
		Headers:    req.Header,
		URL:        req.URL,
	}
	s.handleConnection(req.Context(), info, NewWebSocketConnection(conn))
}

func (s *Server) handleConnection(ctx context.Context, info *ConnectionInfo, connection SocketConnection) {
	socket := newSocket(ctx, info, connection)
	handler := s.accept(socket)
	if handler == nil {
		return
	}
	handler.serve(socket)
}

// accept runs the connection stages and is the single error boundary for
// them. It returns the Handler the socket joined, or nil if the connection
// was terminated.
func (s *Server) accept(socket *Socket) *Handler {
	var handler *Handler
	err := execWithRecovery(func() error {
		var stageErr error
		handler, stageErr = s.admitAndAttach(socket)
		return stageErr
	})

	if err == nil {
		s.metrics.recordConnection(ConnectionAdmitted)
		s.runPostConnect(socket, handler)
		return handler
	}

	var closeErr *CloseError
	switch {
	case errors.As(err, &closeErr):
		result := ConnectionDenied
		if closeErr.Code.Status == StatusNotFound {
			result = ConnectionNotFound
		}
		s.metrics.recordConnection(result)
		s.logger.Warn("connection refused", "path", socket.Info().Path(), "socket", socket.ID(),
			"status", int(closeErr.Code.Status), "reason", closeErr.Code.Reason)
		_ = socket.Close(closeErr.Code)
	case errors.Is(err, ErrSocketClosed):
		s.metrics.recordConnection(ConnectionError)
		s.logger.Debug("socket closed during admission", "path", socket.Info().Path(), "socket", socket.ID())
	default:
		s.metrics.recordConnection(ConnectionError)
		reportError(s.errorFilter, err, socket)
		_ = socket.Close(CloseInternalServerError)
	}
	return nil
}

// admitAndAttach is the staged connection pipeline: connection guards, then
// Handler resolution, then attach.
func (s *Server) admitAndAttach(socket *Socket) (*Handler, error) {
	if err := runGuards(socket.Context(), s.guards, socket, socket.Info()); err != nil {
		return nil, err
	}

	path := NormalizePath(s.prefixPath, socket.Info().Path())
	queryParams := socket.Info().QueryParams()

	for attempt := 0; attempt < maxResolveAttempts; attempt += 1 {
		handler, err := s.resolve(path, queryParams)
		if err != nil {
			return nil, err
		}

		err = handler.attach(socket)
		if errors.Is(err, ErrHandlerDestroyed) {
			s.forget(path, handler)
			continue
		}
		if err != nil {
			return nil, err
		}
		return handler, nil
	}

	return nil, fmt.Errorf("%w: could not attach to %q", ErrHandlerDestroyed, path)
}

// resolve returns the live Handler for path, creating one from the first
// matching route if there is none. A path being created is marked in the
// creating table so a path never has two live Handlers, while the factory and
// init hook run without holding the table lock.
func (s *Server) resolve(path string, queryParams QueryParams) (*Handler, error) {
	for {
		s.mu.Lock()
		if handler, ok := s.handlers[path]; ok {
			s.mu.Unlock()
			return handler, nil
		}
		if created, ok := s.creating[path]; ok {
			s.mu.Unlock()
			<-created
			continue
		}

		route, params, ok := MatchRoute(s.routes, path)
		if !ok {
			s.mu.Unlock()
			return nil, &CloseError{
				Code: CloseNotFound,
				Err:  fmt.Errorf("%w: %q", ErrRouteNotFound, path),
			}
		}
		created := make(chan struct{})
		s.creating[path] = created
		s.mu.Unlock()

		handler, err := s.createHandler(path, route, params, queryParams)

		s.mu.Lock()
		delete(s.creating, path)
		if err == nil {
			s.handlers[path] = handler
			s.metrics.handlerAdded()
		}
		s.mu.Unlock()
		close(created)

		if err != nil {
			return nil, err
		}
		s.logger.Debug("handler created", "path", path, "route", route.Path)
		return handler, nil
	}
}

func (s *Server) createHandler(path string, route *Route, params Params, queryParams QueryParams) (*Handler, error) {
	pattern, _ := route.Pattern()
	return NewHandler(HandlerConfig{
		Path:          path,
		Pattern:       pattern,
		Params:        params,
		QueryParams:   queryParams,
		Guards:        route.Guards,
		MessageGuards: route.MessageGuards,
		InboundPipes:  route.InboundPipes,
		OutboundPipes: route.OutboundPipes,
		ErrorFilter:   s.errorFilter,
		Logger:        s.logger,
		Metrics:       s.metrics,
		OnDestroy: func(h *Handler) {
			s.forget(path, h)
		},
	}, route.Handler)
}

// forget removes handler from the table if it is still the entry for path.
func (s *Server) forget(path string, handler *Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.handlers[path]; ok && current == handler {
		delete(s.handlers, path)
		s.metrics.handlerRemoved()
	}
}

func (s *Server) runPostConnect(socket *Socket, handler *Handler) {
	if s.onConnect == nil {
		return
	}
	err := execWithRecovery(func() error {
		return s.onConnect(socket.Context(), socket, handler)
	})
	if err != nil {
		reportError(s.errorFilter, &HookError{Hook: "connect", Path: handler.Path(), Err: err}, socket)
		_ = socket.Close(CloseInternalServerError)
	}
}
