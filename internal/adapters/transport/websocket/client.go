package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/bnema/formflow/internal/domain"
)

type client struct {
	id     domain.SessionID
	conn   *websocket.Conn
	opts   *Options
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id domain.SessionID, conn *websocket.Conn, opts *Options, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		opts:   opts,
		logger: logger.With("session", id),
		done:   make(chan struct{}),
	}
}

// writeJSON serialises writes on the connection and retries transient
// failures with a constant backoff.
func (c *client) writeJSON(ctx context.Context, msg outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	operation := func() error {
		select {
		case <-c.done:
			return backoff.Permanent(ErrNotConnected)
		default:
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return backoff.Permanent(err)
		}
		return c.conn.WriteJSON(msg)
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.opts.RetryDelay), c.opts.MaxRetries),
		ctx,
	)

	return backoff.RetryNotify(operation, strategy, func(err error, next time.Duration) {
		c.logger.Warn("retrying websocket write", "error", err, "next", next)
	})
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
}

func (c *client) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.close(websocket.CloseInternalServerErr, "ping failure")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close(code int, text string) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(c.opts.WriteTimeout),
		)
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Debug("close frame not sent", "error", err)
		}
		_ = c.conn.Close()
	})
}
