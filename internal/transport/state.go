package transport

import "go.uber.org/zap"

// ConnectionState is what observers see of the connection.
type ConnectionState struct {
	IsConnected    bool   `json:"is_connected"`
	IsReconnecting bool   `json:"is_reconnecting"`
	LastError      string `json:"last_error,omitempty"`
}

type stateObserver struct {
	id int
	fn func(ConnectionState)
}

// setStateLocked is the only writer of c.state. A connected client is never
// also reconnecting.
func (c *Client) setStateLocked(s ConnectionState) bool {
	if s.IsConnected {
		s.IsReconnecting = false
	}
	if s == c.state {
		return false
	}
	c.state = s
	return true
}

// unlockAndPublish releases mu and, if changed, delivers the current state
// to every observer. obsMu is taken before mu is released so observers see
// changes in order.
func (c *Client) unlockAndPublish(changed bool) {
	if !changed {
		c.mu.Unlock()
		return
	}
	s := c.state
	c.obsMu.Lock()
	c.mu.Unlock()
	defer c.obsMu.Unlock()

	for _, o := range c.observers {
		c.callObserver(o, s)
	}
}

func (c *Client) callObserver(o stateObserver, s ConnectionState) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("connection observer panicked", zap.Int("observer", o.id), zap.Any("panic", r))
		}
	}()
	o.fn(s)
}

// OnConnectionStateChange registers fn for every state change. fn runs
// synchronously and must not call Connect or Disconnect.
func (c *Client) OnConnectionStateChange(fn func(ConnectionState)) (unsubscribe func()) {
	c.obsMu.Lock()
	c.nextObserver++
	id := c.nextObserver
	c.observers = append(c.observers, stateObserver{id: id, fn: fn})
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// OnResync registers fn to run just before a RECONNECT is written, so the
// replay that follows can be recognised.
func (c *Client) OnResync(fn func(gameID string)) {
	c.obsMu.Lock()
	c.resyncHooks = append(c.resyncHooks, fn)
	c.obsMu.Unlock()
}

func (c *Client) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
