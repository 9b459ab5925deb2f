package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bnema/formflow/internal/domain"
)

var ErrNotConnected = errors.New("session not connected")

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultPingInterval    = 25 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultMaxMessageBytes = 64 << 10
	defaultRetryDelay      = 200 * time.Millisecond
	defaultMaxRetries      = 3
	handlerTimeout         = 30 * time.Second
)

// SessionHandler receives the lifecycle of every connection the hub
// accepts. Calls for one session are never concurrent.
type SessionHandler interface {
	Connected(ctx context.Context, id domain.SessionID) error
	Respond(ctx context.Context, id domain.SessionID, resp domain.Response) error
	Disconnected(ctx context.Context, id domain.SessionID) error
}

type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageReceived()
	MessageSent()
}

type Options struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	MaxMessageBytes int64
	RetryDelay      time.Duration
	MaxRetries      uint64
	CheckOrigin     func(*http.Request) bool
	Logger          *slog.Logger
	Metrics         Metrics
	NewID           func() domain.SessionID
}

func (o *Options) applyDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongTimeout <= o.PingInterval {
		o.PongTimeout = max(defaultPongTimeout, 2*o.PingInterval)
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.NewID == nil {
		o.NewID = func() domain.SessionID { return domain.SessionID(uuid.NewString()) }
	}
}

// Hub accepts websocket connections, one session each, and implements
// ports.Sender and ports.Presence for them.
type Hub struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[domain.SessionID]*client
	handler SessionHandler
	closed  bool

	wg sync.WaitGroup
}

func NewHub(opts Options) *Hub {
	opts.applyDefaults()
	return &Hub{
		opts:   opts,
		logger: opts.Logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: opts.CheckOrigin,
		},
		clients: make(map[domain.SessionID]*client),
	}
}

// Attach sets the handler connections are routed to. It must be called
// before the hub serves requests.
func (h *Hub) Attach(handler SessionHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	handler, closed := h.handler, h.closed
	h.mu.RUnlock()
	if handler == nil || closed {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(h.opts.NewID(), conn, &h.opts, h.logger)
	if !h.add(c) {
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer h.wg.Done()
	defer h.remove(c, handler)

	conn.SetReadLimit(h.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	})
	go c.pingLoop()

	ctx := context.WithoutCancel(r.Context())
	if err := h.write(ctx, c, outbound{Type: typeHello, Session: c.id}); err != nil {
		c.logger.Warn("hello not sent", "error", err)
		return
	}
	if err := h.call(ctx, func(ctx context.Context) error { return handler.Connected(ctx, c.id) }); err != nil {
		c.logger.Warn("session start failed", "error", err)
	}

	h.readLoop(ctx, c, handler)
}

func (h *Hub) readLoop(ctx context.Context, c *client, handler SessionHandler) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		h.opts.Metrics.MessageReceived()
		_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reject(ctx, c, fmt.Sprintf("invalid message: %v", err))
			continue
		}
		if msg.Type != typeResponse {
			h.reject(ctx, c, fmt.Sprintf("unknown message type %q", msg.Type))
			continue
		}

		if err := h.call(ctx, func(ctx context.Context) error { return handler.Respond(ctx, c.id, msg.Response) }); err != nil {
			c.logger.Info("response rejected", "frame", msg.Frame, "error", err)
			h.reject(ctx, c, err.Error())
		}
	}
}

func (h *Hub) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	return fn(ctx)
}

func (h *Hub) reject(ctx context.Context, c *client, reason string) {
	if err := h.write(ctx, c, outbound{Type: typeError, Error: reason}); err != nil {
		c.logger.Debug("error message not sent", "error", err)
	}
}

// Deliver writes a form to its session.
func (h *Hub) Deliver(ctx context.Context, delivery domain.Delivery) error {
	c, ok := h.client(delivery.Session)
	if !ok {
		return fmt.Errorf("deliver form: %w", ErrNotConnected)
	}
	return h.write(ctx, c, outbound{Type: typeForm, Frame: delivery.Frame, Form: delivery.Form})
}

func (h *Hub) Notify(ctx context.Context, id domain.SessionID, notice domain.Notice) error {
	c, ok := h.client(id)
	if !ok {
		return fmt.Errorf("send notice: %w", ErrNotConnected)
	}
	return h.write(ctx, c, outbound{Type: typeNotice, Notice: &notice})
}

func (h *Hub) IsReachable(id domain.SessionID) bool {
	_, ok := h.client(id)
	return ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a close frame to every connection and waits for their
// handlers to finish, or for ctx.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close websocket hub: %w", ctx.Err())
	}
}

func (h *Hub) write(ctx context.Context, c *client, msg outbound) error {
	if err := c.writeJSON(ctx, msg); err != nil {
		return err
	}
	h.opts.Metrics.MessageSent()
	return nil
}

func (h *Hub) client(id domain.SessionID) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// add registers c and counts it in wg while the hub still accepts
// connections.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	h.opts.Metrics.ConnectionOpened()
	c.logger.Info("session connected")
	return true
}

func (h *Hub) remove(c *client, handler SessionHandler) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close(websocket.CloseNormalClosure, "bye")
	h.opts.Metrics.ConnectionClosed()

	if err := h.call(context.Background(), func(ctx context.Context) error { return handler.Disconnected(ctx, c.id) }); err != nil {
		c.logger.Warn("session release failed", "error", err)
	}
	c.logger.Info("session disconnected")
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened() {}
func (nopMetrics) ConnectionClosed() {}
func (nopMetrics) MessageReceived() {}
func (nopMetrics) MessageSent() {}
