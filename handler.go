package agora

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hooks are the application callbacks of a Handler. Every field is optional;
// nil hooks are replaced with no-ops when the Handler is created. Hooks for
// different sockets may run concurrently, so state shared between them must
// be synchronized. A hook that returns an error or panics is reported to the
// ErrorFilter and never affects other sockets.
type Hooks struct {
	// OnInit runs once when the Handler is created, before its first socket
	// attaches. Other connections to the same path wait for it to return, so
	// it must not wait on a connection to its own path. Connections to other
	// paths are unaffected.
	OnInit func(ctx context.Context) error

	// OnConnect runs after a socket passed the route guards and joined the
	// pool.
	OnConnect func(ctx context.Context, socket *Socket) error

	// OnMessage receives each inbound message after the inbound pipes and
	// message guards.
	OnMessage func(ctx context.Context, socket *Socket, message any) error

	// OnMessageDenied receives inbound messages rejected by a message guard.
	OnMessageDenied func(ctx context.Context, socket *Socket, message any) error

	// OnError receives transport read failures of a pooled socket. The hook
	// itself does not close the socket, but a failed read leaves the
	// connection unusable, so a close event with status 1006 follows.
	OnError func(ctx context.Context, socket *Socket, err error) error

	// OnClose runs when a pooled socket closes, before it leaves the pool.
	OnClose func(ctx context.Context, socket *Socket, status Status, reason string) error

	// OnDestroy runs once when the pool becomes empty, right before the
	// Handler is removed from the server. It also runs when the Handler's
	// first socket is rejected by a route guard and no other socket is
	// waiting, even though the pool was never non-empty.
	OnDestroy func(ctx context.Context) error
}

func (h Hooks) withDefaults() Hooks {
	if h.OnInit == nil {
		h.OnInit = func(context.Context) error { return nil }
	}
	if h.OnConnect == nil {
		h.OnConnect = func(context.Context, *Socket) error { return nil }
	}
	if h.OnMessage == nil {
		h.OnMessage = func(context.Context, *Socket, any) error { return nil }
	}
	if h.OnMessageDenied == nil {
		h.OnMessageDenied = func(context.Context, *Socket, any) error { return nil }
	}
	if h.OnError == nil {
		h.OnError = func(context.Context, *Socket, error) error { return nil }
	}
	if h.OnClose == nil {
		h.OnClose = func(context.Context, *Socket, Status, string) error { return nil }
	}
	if h.OnDestroy == nil {
		h.OnDestroy = func(context.Context) error { return nil }
	}
	return h
}

// HandlerFactory builds the hooks for a new Handler. It is called once per
// Handler, so state captured by the returned hooks starts fresh every time a
// path gets a new Handler. The Handler passed in can be kept to call Send and
// Broadcast from the hooks.
type HandlerFactory func(h *Handler) Hooks

// HandlerConfig carries everything a Handler is bound to at creation.
type HandlerConfig struct {
	Path          string
	Pattern       *Pattern
	Params        Params
	QueryParams   QueryParams
	Guards        []Guard
	MessageGuards []MessageGuard
	InboundPipes  []Pipe
	OutboundPipes []Pipe
	ErrorFilter   ErrorFilter
	Logger        *slog.Logger
	Metrics       *Metrics

	// OnDestroy is called after the Handler's own destroy hook, once the
	// pool has become empty.
	OnDestroy func(h *Handler)
}

// Handler owns the pool of sockets connected to one normalized path. All
// sockets on the path share the same Handler until the pool empties.
type Handler struct {
	path          string
	pattern       *Pattern
	params        Params
	queryParams   QueryParams
	guards        []Guard
	messageGuards []MessageGuard
	inboundPipes  []Pipe
	outboundPipes []Pipe
	errorFilter   ErrorFilter
	logger        *slog.Logger
	metrics       *Metrics
	onDestroy     func(h *Handler)
	hooks         Hooks

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	sockets      []*Socket
	pending      int
	everAttached bool
	destroyed    bool
}

// NewHandler creates a Handler and runs its init hook. An init hook failure is
// reported and does not prevent creation; a panicking factory does, and is
// returned as an error.
func NewHandler(config HandlerConfig, factory HandlerFactory) (*Handler, error) {
	h := &Handler{
		path:          config.Path,
		pattern:       config.Pattern,
		params:        config.Params,
		queryParams:   config.QueryParams,
		guards:        config.Guards,
		messageGuards: config.MessageGuards,
		inboundPipes:  config.InboundPipes,
		outboundPipes: config.OutboundPipes,
		errorFilter:   config.ErrorFilter,
		logger:        config.Logger,
		metrics:       config.Metrics,
		onDestroy:     config.OnDestroy,
	}
	if h.params == nil {
		h.params = Params{}
	}
	if h.queryParams == nil {
		h.queryParams = QueryParams{}
	}
	if h.errorFilter == nil {
		h.errorFilter = LogErrorFilter{Logger: h.logger}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	var hooks Hooks
	if factory != nil {
		err := execWithRecovery(func() error {
			hooks = factory(h)
			return nil
		})
		if err != nil {
			h.cancel()
			return nil, &HookError{Hook: "factory", Path: h.path, Err: err}
		}
	}
	h.hooks = hooks.withDefaults()

	h.callHook("init", nil, func() error {
		return h.hooks.OnInit(h.ctx)
	})

	return h, nil
}

// Path returns the normalized path the Handler serves.
func (h *Handler) Path() string {
	return h.path
}

// Pattern returns the pattern of the route that created the Handler. It may
// be nil for Handlers created directly with NewHandler.
func (h *Handler) Pattern() *Pattern {
	return h.pattern
}

// Params returns a copy of the path parameters bound at creation.
func (h *Handler) Params() Params {
	return h.params.clone()
}

// QueryParams returns a copy of the query parameters bound at creation.
func (h *Handler) QueryParams() QueryParams {
	return h.queryParams.clone()
}

// Context returns a context that is cancelled once the Handler is destroyed.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Sockets returns a snapshot of the pool in attach order.
func (h *Handler) Sockets() []*Socket {
	h.mu.Lock()
	defer h.mu.Unlock()
	sockets := make([]*Socket, len(h.sockets))
	copy(sockets, h.sockets)
	return sockets
}

// Len returns the number of sockets in the pool.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sockets)
}

// IsDestroyed reports whether the Handler's pool has emptied and it has been
// removed from service.
func (h *Handler) IsDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Send runs message through the outbound pipes and writes the result to one
// socket of the pool. A pipe or write failure is reported to the ErrorFilter
// and also returned; the message is not transmitted.
func (h *Handler) Send(ctx context.Context, socket *Socket, message any) error {
	transformed, err := runPipes(ctx, OutboundPipe, h.outboundPipes, message)
	if err != nil {
		h.metrics.pipeFailed(OutboundPipe)
		reportError(h.errorFilter, err, socket)
		return err
	}

	// The pipes may have taken a while; the socket can have left since.
	if !h.has(socket) || socket.IsClosed() {
		return ErrSocketNotPooled
	}

	if err := socket.write(ctx, transformed); err != nil {
		reportError(h.errorFilter, err, socket)
		return err
	}
	h.metrics.messageSent(1)

	return nil
}

// Broadcast runs message through the outbound pipes once and writes the result
// to every open socket in the pool, in attach order. If a pipe fails no socket
// receives the message and the error is reported and returned. Write failures
// on individual sockets are reported to the ErrorFilter and do not stop
// delivery to the rest.
func (h *Handler) Broadcast(ctx context.Context, message any) error {
	return h.broadcast(ctx, nil, message)
}

// BroadcastExcept is like Broadcast but skips one socket, typically the
// sender of the message being relayed.
func (h *Handler) BroadcastExcept(ctx context.Context, except *Socket, message any) error {
	return h.broadcast(ctx, except, message)
}

func (h *Handler) broadcast(ctx context.Context, except *Socket, message any) error {
	transformed, err := runPipes(ctx, OutboundPipe, h.outboundPipes, message)
	if err != nil {
		h.metrics.pipeFailed(OutboundPipe)
		reportError(h.errorFilter, err, nil)
		return err
	}

	sent := 0
	for _, socket := range h.Sockets() {
		if socket == except || socket.IsClosed() {
			continue
		}
		if err := socket.write(ctx, transformed); err != nil {
			reportError(h.errorFilter, err, socket)
			continue
		}
		sent += 1
	}
	h.metrics.broadcast()
	h.metrics.messageSent(sent)

	return nil
}

// attach runs the route guards for socket and adds it to the pool. A rejected
// socket is closed with the access denied code and never joins the pool.
func (h *Handler) attach(socket *Socket) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrHandlerDestroyed
	}
	h.pending += 1
	h.mu.Unlock()

	guardErr := runGuards(socket.Context(), h.guards, socket, socket.Info())

	h.mu.Lock()
	h.pending -= 1
	if h.destroyed {
		h.mu.Unlock()
		return ErrHandlerDestroyed
	}
	if guardErr == nil && socket.IsClosed() {
		guardErr = ErrSocketClosed
	}
	if guardErr != nil {
		retire := !h.everAttached && h.pending == 0 && len(h.sockets) == 0
		if retire {
			h.destroyed = true
		}
		h.mu.Unlock()

		var closeErr *CloseError
		if errors.As(guardErr, &closeErr) {
			h.logger.Warn("socket rejected by route guard", "path", h.path, "socket", socket.ID(), "reason", closeErr.Code.Reason)
			_ = socket.Close(closeErr.Code)
		}
		if retire {
			h.destroy()
		}
		return guardErr
	}
	h.sockets = append(h.sockets, socket)
	h.everAttached = true
	poolSize := len(h.sockets)
	h.mu.Unlock()

	h.metrics.socketAttached()
	h.logger.Debug("socket attached", "path", h.path, "socket", socket.ID(), "pool", poolSize)

	h.callHook("connect", socket, func() error {
		return h.hooks.OnConnect(socket.Context(), socket)
	})

	return nil
}

// serve processes the events of a pooled socket in arrival order until the
// socket closes, then detaches it.
func (h *Handler) serve(socket *Socket) {
	for {
		msg, err := socket.read()
		if err != nil {
			h.handleReadError(socket, err)
			h.detach(socket)
			return
		}
		h.handleMessage(socket, msg)
	}
}

func (h *Handler) handleMessage(socket *Socket, msg *SocketMessage) {
	h.metrics.messageReceived()
	ctx := socket.Context()

	message, err := runPipes(ctx, InboundPipe, h.inboundPipes, msg.Data)
	if err != nil {
		h.metrics.pipeFailed(InboundPipe)
		h.metrics.messageDropped()
		h.logger.Debug("inbound message dropped", "path", h.path, "socket", socket.ID(), "error", err)
		return
	}

	if ok, err := runMessageGuards(ctx, h.messageGuards, socket, message); !ok {
		h.logger.Debug("inbound message denied", "path", h.path, "socket", socket.ID(), "error", err)
		h.callHook("message_denied", socket, func() error {
			return h.hooks.OnMessageDenied(ctx, socket, message)
		})
		return
	}

	h.callHook("message", socket, func() error {
		return h.hooks.OnMessage(ctx, socket, message)
	})
}

func (h *Handler) handleReadError(socket *Socket, err error) {
	var closeErr websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		socket.markClosed(closeErr.Code, closeErr.Reason)
	case socket.IsClosed():
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		socket.markClosed(StatusAbnormalClosure, "")
	default:
		h.callHook("error", socket, func() error {
			return h.hooks.OnError(socket.Context(), socket, err)
		})
		socket.markClosed(StatusAbnormalClosure, err.Error())
	}
}

// detach runs the close hook and removes socket from the pool. The Handler is
// destroyed when this empties the pool.
func (h *Handler) detach(socket *Socket) {
	status, reason, _ := socket.CloseStatus()
	h.callHook("close", socket, func() error {
		return h.hooks.OnClose(context.WithoutCancel(socket.Context()), socket, status, reason)
	})

	h.mu.Lock()
	index := -1
	for i, pooled := range h.sockets {
		if pooled == socket {
			index = i
			break
		}
	}
	if index < 0 {
		h.mu.Unlock()
		return
	}
	h.sockets = append(h.sockets[:index], h.sockets[index+1:]...)
	empty := len(h.sockets) == 0 && !h.destroyed
	if empty {
		h.destroyed = true
	}
	poolSize := len(h.sockets)
	h.mu.Unlock()

	h.metrics.socketDetached()
	h.logger.Debug("socket detached", "path", h.path, "socket", socket.ID(), "pool", poolSize, "status", int(status))

	if empty {
		h.destroy()
	}
}

func (h *Handler) destroy() {
	h.callHook("destroy", nil, func() error {
		return h.hooks.OnDestroy(h.ctx)
	})
	h.cancel()
	h.logger.Debug("handler destroyed", "path", h.path)
	if h.onDestroy != nil {
		h.onDestroy(h)
	}
}

func (h *Handler) has(socket *Socket) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pooled := range h.sockets {
		if pooled == socket {
			return true
		}
	}
	return false
}

func (h *Handler) callHook(name string, socket *Socket, fn func() error) {
	if err := execWithRecovery(fn); err != nil {
		reportError(h.errorFilter, &HookError{Hook: name, Path: h.path, Err: err}, socket)
	}
}
