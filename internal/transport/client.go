package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/checkpoint"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

var ErrTransport = errors.New("transport error")

// Dispatcher receives every decoded inbound event, in arrival order, on the
// read goroutine. It must not call Disconnect.
type Dispatcher func(protocol.Event)

// Client keeps at most one live connection to the game server and
// reconnects on its own after any close that was not a normal closure.
type Client struct {
	serverURL string
	dispatch  Dispatcher
	store     checkpoint.Store
	log       *zap.Logger

	reconnectDelay time.Duration
	retryDelay     time.Duration
	heartbeat      time.Duration
	dialTimeout    time.Duration
	httpClient     *http.Client

	mu          sync.Mutex
	conn        *websocket.Conn
	stop        context.CancelFunc // ends the read and heartbeat goroutines of conn
	loops       sync.WaitGroup
	gen         uint64             // bumped by Connect and Disconnect
	timer       *time.Timer        // pending reconnect
	identity    protocol.Identity
	lastEventID string
	state       ConnectionState

	obsMu        sync.Mutex
	observers    []stateObserver
	nextObserver int
	resyncHooks  []func(gameID string)
}

func New(serverURL string, dispatch Dispatcher, opts ...Option) *Client {
	c := &Client{
		serverURL:      serverURL,
		dispatch:       dispatch,
		log:            zap.NewNop(),
		reconnectDelay: DefaultReconnectDelay,
		retryDelay:     DefaultRetryDelay,
		heartbeat:      DefaultHeartbeatInterval,
		dialTimeout:    DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens a connection for id, replacing any current one. When
// lastEventID is empty the checkpoint store is consulted; a non-empty
// resume id is sent as a RECONNECT before Connect returns and before any
// other action can be written. A failed dial is returned and also retried
// in the background until Disconnect.
func (c *Client) Connect(ctx context.Context, id protocol.Identity, lastEventID string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.identity = id
	c.lastEventID = lastEventID
	c.stopTimerLocked()
	old, oldStop := c.conn, c.stop
	c.conn, c.stop = nil, nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close(websocket.StatusNormalClosure, "reconnecting")
		oldStop()
	}

	err := c.open(ctx, gen, lastEventID)
	if err != nil {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return err
		}
		changed := c.setStateLocked(ConnectionState{IsReconnecting: true, LastError: err.Error()})
		c.scheduleLocked(c.reconnectDelay)
		c.unlockAndPublish(changed)
	}
	return err
}

// Disconnect closes the connection with a normal closure and cancels any
// pending reconnect. Nothing started by this client is left running after
// it returns. Calling it again is harmless.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()
	conn, stop := c.conn, c.stop
	c.conn, c.stop = nil, nil
	changed := c.setStateLocked(ConnectionState{})
	c.unlockAndPublish(changed)

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		stop()
	}
	c.loops.Wait()
}

// SendAction writes a to the server. While disconnected the action is
// dropped with a warning; nothing is queued.
func (c *Client) SendAction(ctx context.Context, a protocol.Action) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.log.Warn("dropping action, not connected", zap.String("action", string(a.Type)))
		return
	}
	if err := c.write(ctx, conn, a); err != nil {
		c.log.Warn("send action failed", zap.String("action", string(a.Type)), zap.Error(err))
	}
}

func (c *Client) open(ctx context.Context, gen uint64, explicitID string) error {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()

	target, err := c.endpoint(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}

	resumeFrom := c.resumeID(ctx, id, explicitID)
	if c.superseded(gen) {
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return fmt.Errorf("%w: connection superseded", ErrTransport)
	}
	if resumeFrom != "" {
		c.fireResync(id.GameID)
		if err := c.write(ctx, conn, protocol.ReconnectAction(id.GameID, id.PlayerID, resumeFrom)); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "resume failed")
			return fmt.Errorf("%w: send reconnect: %v", ErrTransport, err)
		}
		c.log.Info("resuming event stream", zap.String("game_id", id.GameID), zap.String("last_event_id", resumeFrom))
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return fmt.Errorf("%w: connection superseded", ErrTransport)
	}
	runCtx, stop := context.WithCancel(context.Background())
	c.conn, c.stop = conn, stop
	c.loops.Add(2)
	changed := c.setStateLocked(ConnectionState{IsConnected: true})
	c.unlockAndPublish(changed)

	go c.readLoop(runCtx, conn, gen)
	go c.heartbeatLoop(runCtx, conn)
	c.log.Info("connected", zap.String("game_id", id.GameID), zap.String("player_id", id.PlayerID))
	return nil
}

// superseded reports whether a Connect or Disconnect happened after the
// attempt for gen started.
func (c *Client) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// endpoint adds the identity to the URL only when all of it is known.
func (c *Client) endpoint(id protocol.Identity) (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", err
	}
	if id.Complete() {
		q := u.Query()
		q.Set("gameId", id.GameID)
		q.Set("playerId", id.PlayerID)
		q.Set("sessionToken", id.SessionToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// resumeID prefers the id passed to Connect, then the stored checkpoint.
func (c *Client) resumeID(ctx context.Context, id protocol.Identity, explicitID string) string {
	if explicitID != "" {
		return explicitID
	}
	if c.store == nil || id.GameID == "" {
		return ""
	}
	stored, err := c.store.Get(ctx, id.GameID)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			c.log.Warn("read checkpoint failed", zap.String("game_id", id.GameID), zap.Error(err))
		}
		return ""
	}
	return stored
}

func (c *Client) fireResync(gameID string) {
	c.obsMu.Lock()
	hooks := append([]func(string){}, c.resyncHooks...)
	c.obsMu.Unlock()
	for _, fn := range hooks {
		fn(gameID)
	}
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	defer c.loops.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		events, bad := protocol.DecodeBatch(data)
		for _, lerr := range bad {
			c.log.Warn("skipping malformed event", zap.Int("line", lerr.Index), zap.Error(lerr.Err))
		}
		for _, ev := range events {
			c.deliver(ev)
		}
	}
}

func (c *Client) deliver(ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("event dispatch panicked", zap.String("type", string(ev.Type)), zap.Any("panic", r))
		}
	}()
	if c.dispatch != nil {
		c.dispatch(ev)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.loops.Done()
	if c.heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(ctx, conn, protocol.Ping); err != nil {
				c.log.Debug("heartbeat failed", zap.Error(err))
			}
		}
	}
}

// handleClose reacts to the end of the read loop of connection gen. Closes
// of superseded connections are ignored.
func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.stop != nil {
		c.stop()
	}
	c.conn, c.stop = nil, nil

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		c.log.Info("connection closed normally")
		changed := c.setStateLocked(ConnectionState{})
		c.unlockAndPublish(changed)
		return
	}

	c.log.Warn("connection lost", zap.Int("status", int(status)), zap.Error(err))
	changed := c.setStateLocked(ConnectionState{IsReconnecting: true, LastError: err.Error()})
	c.scheduleLocked(c.reconnectDelay)
	c.unlockAndPublish(changed)
}

// scheduleLocked arms the reconnect timer unless one is already pending.
func (c *Client) scheduleLocked(delay time.Duration) {
	if c.timer != nil {
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	explicitID := c.lastEventID
	c.mu.Unlock()

	// A reconnect resumes from the newest checkpoint, not the id the
	// session was first opened with.
	if c.store != nil {
		explicitID = ""
	}
	err := c.open(context.Background(), gen, explicitID)
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.log.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", c.retryDelay))
	changed := c.setStateLocked(ConnectionState{IsReconnecting: true, LastError: err.Error()})
	c.scheduleLocked(c.retryDelay)
	c.unlockAndPublish(changed)
}
