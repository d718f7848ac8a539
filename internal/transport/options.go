package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/checkpoint"
)

const (
	DefaultReconnectDelay    = 2 * time.Second
	DefaultRetryDelay        = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
)

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCheckpoints lets Connect resume from the stored last event id when
// the caller does not pass one.
func WithCheckpoints(s checkpoint.Store) Option {
	return func(c *Client) { c.store = s }
}

// WithReconnectDelay sets the wait after an abnormal close.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// WithRetryDelay sets the wait after a failed reconnect attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}
