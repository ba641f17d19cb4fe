package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"image-processor-go/internal/platform/observability"
	"image-processor-go/internal/utils"
)

// HandlerBuilder creates the feed handler for an upgraded websocket connection.
type HandlerBuilder func(conn *Connection, req *http.Request) (FeedHandler, error)

// Router upgrades HTTP requests into camera feeds.
type Router struct {
	feeds  *Feeds
	logger *utils.Logger
	base   context.Context

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	builder          atomic.Value // HandlerBuilder
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	// BaseContext parents every feed; canceling it ends all feeds.
	BaseContext context.Context
}

// NewRouter constructs a websocket router.
func NewRouter(feeds *Feeds, logger *utils.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin: opts.CheckOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	upgrader.HandshakeTimeout = timeout

	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}

	return &Router{
		feeds:            feeds,
		logger:           logger,
		base:             base,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
	}
}

// SetHandlerBuilder registers the handler builder that will be invoked after a successful upgrade.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

// Handle upgrades the HTTP connection and starts a feed for it.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", "handle")
	var spanErr error
	defer func() {
		spanEnd(spanErr)
	}()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(
			spanCtx,
			"websocket.upgrade.error",
			1,
			map[string]string{
				"component": "transport.websocket",
			},
		)
		r.logger.ErrorTag("WebSocket", "handshake failed: %v", err)
		return
	}

	wsConn := NewConnection(uuid.NewString(), conn)
	r.logger.InfoTag("WebSocket", "connection %s opened from %s", wsConn.ID(), req.RemoteAddr)
	observability.RecordMetric(
		spanCtx,
		"websocket.upgrade.success",
		1,
		map[string]string{
			"component": "transport.websocket",
		},
	)

	handler, err := builder(wsConn, req)
	if err != nil || handler == nil {
		spanErr = err
		observability.RecordMetric(
			spanCtx,
			"websocket.connection.error",
			1,
			map[string]string{
				"component": "transport.websocket",
				"reason":    "handler_creation_failed",
			},
		)
		r.logger.WarnTag("WebSocket", "rejecting connection %s: %v", wsConn.ID(), err)
		if err != nil {
			_ = wsConn.WriteJSON(map[string]string{"type": "error", "message": err.Error()})
		}
		_ = wsConn.Close()
		return
	}

	// the request context ends with this handler; feeds outlive it
	feed := NewFeed(r.base, handler, wsConn, r.logger)
	r.feeds.Attach(feed)

	observability.RecordMetric(
		spanCtx,
		"websocket.connection.opened",
		1,
		map[string]string{
			"component": "transport.websocket",
		},
	)

	go feed.Run(func(runErr error) {
		r.feeds.Detach(feed)
		if runErr != nil {
			r.logger.WarnTag("WebSocket", "feed %s ended with error: %v", feed.ID(), runErr)
		}
		observability.RecordMetric(
			feed.Context(),
			"websocket.connection.closed",
			1,
			map[string]string{
				"component": "transport.websocket",
			},
		)
	})
}
