// Package client assembles one game session: transport, router, engine,
// session store and action submitter, with an explicit New, Start and Close
// lifecycle. Several clients can live in one process without sharing state.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/actions"
	"github.com/DoyleJ11/alignment-sync/internal/checkpoint"
	"github.com/DoyleJ11/alignment-sync/internal/engine"
	"github.com/DoyleJ11/alignment-sync/internal/router"
	"github.com/DoyleJ11/alignment-sync/internal/session"
	"github.com/DoyleJ11/alignment-sync/internal/transport"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

var ErrNoSession = errors.New("no game session")

type Config struct {
	ServerURL  string
	Checkpoint checkpoint.Config

	Heartbeat      time.Duration
	ReconnectDelay time.Duration
	RetryDelay     time.Duration
	ResyncTimeout  time.Duration
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCheckpointStore uses s instead of opening Config.Checkpoint. The
// caller keeps ownership of s.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(c *Client) { c.store = s }
}

type Client struct {
	cfg       Config
	log       *zap.Logger
	store     checkpoint.Store
	ownsStore bool

	engine    *engine.Engine
	router    *router.Router
	transport *transport.Client
	session   *session.Store
	submitter *actions.Submitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	c := &Client{cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		store, err := checkpoint.Open(ctx, cfg.Checkpoint)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		c.store, c.ownsStore = store, true
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.engine = engine.New(engine.WithLogger(c.log.Named("engine")))
	c.engine.Init()

	topts := []transport.Option{
		transport.WithLogger(c.log.Named("transport")),
		transport.WithCheckpoints(c.store),
	}
	if cfg.Heartbeat > 0 {
		topts = append(topts, transport.WithHeartbeat(cfg.Heartbeat))
	}
	if cfg.ReconnectDelay > 0 {
		topts = append(topts, transport.WithReconnectDelay(cfg.ReconnectDelay))
	}
	if cfg.RetryDelay > 0 {
		topts = append(topts, transport.WithRetryDelay(cfg.RetryDelay))
	}
	c.transport = transport.New(cfg.ServerURL, c.dispatchEvent, topts...)

	ropts := []router.Option{
		router.WithLogger(c.log.Named("router")),
		router.WithCheckpoints(c.store),
		router.WithSender(c.transport),
	}
	if cfg.ResyncTimeout > 0 {
		ropts = append(ropts, router.WithResyncTimeout(cfg.ResyncTimeout))
	}
	c.router = router.New(c.engine, ropts...)
	c.transport.OnResync(c.router.BeginResync)

	c.session = session.NewStore(c.ctx, session.Initial(), c.log.Named("session"))
	c.submitter = actions.NewSubmitter(c.router, c.engine,
		actions.WithLogger(c.log.Named("actions")),
		actions.WithConnectedCheck(func() bool { return c.transport.ConnectionState().IsConnected }))

	c.bridge()
	return c, nil
}

func (c *Client) dispatchEvent(ev protocol.Event) {
	c.router.Dispatch(c.ctx, ev)
}

// Start begins following the session: whenever the session says a game
// connection belongs to it the transport is connected, otherwise it is
// disconnected. Following stops when ctx ends or the client is closed.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.follow(ctx)
	})
}

func (c *Client) follow(ctx context.Context) {
	defer c.wg.Done()
	var current protocol.Identity
	connected := false

	for {
		updates := make(chan session.Update, 16)
		subscriber := "transport-" + uuid.NewString()
		if err := c.session.Subscribe(ctx, subscriber, updates); err != nil {
			return
		}

	receive:
		for {
			select {
			case u, ok := <-updates:
				if !ok {
					// closed by a stopped store, or because we fell behind
					break receive
				}
				want := session.ShouldConnect(u.Snapshot)
				switch {
				case want && (!connected || u.Snapshot.Identity != current):
					current, connected = u.Snapshot.Identity, true
					if err := c.transport.Connect(c.ctx, current, ""); err != nil {
						c.log.Warn("connect failed, retrying in background", zap.String("game_id", current.GameID), zap.Error(err))
					}
				case !want && connected:
					connected = false
					c.transport.Disconnect()
				}
			case <-ctx.Done():
				_ = c.session.Unsubscribe(c.ctx, subscriber)
				return
			case <-c.ctx.Done():
				return
			}
		}
		if c.ctx.Err() != nil {
			return
		}
	}
}

// Dispatch applies a session action.
func (c *Client) Dispatch(ctx context.Context, a session.Action) (session.Snapshot, error) {
	return c.session.Dispatch(ctx, a)
}

// Submit sends a player intent for the current session. Missing game and
// player ids are filled in from the session identity.
func (c *Client) Submit(ctx context.Context, in actions.Intent) ([]engine.Event, error) {
	if in.GameID == "" || in.PlayerID == "" {
		v, err := c.session.State(ctx)
		if err != nil {
			return nil, err
		}
		if in.GameID == "" {
			in.GameID = v.Snapshot.Identity.GameID
		}
		if in.PlayerID == "" {
			in.PlayerID = v.Snapshot.Identity.PlayerID
		}
	}
	if in.GameID == "" {
		return nil, ErrNoSession
	}
	return c.submitter.Submit(ctx, in)
}

// Watch streams session snapshots to out until Unwatch or Close.
func (c *Client) Watch(ctx context.Context, id string, out chan session.Update) error {
	return c.session.Subscribe(ctx, id, out)
}

func (c *Client) Unwatch(ctx context.Context, id string) error {
	return c.session.Unsubscribe(ctx, id)
}

func (c *Client) Session(ctx context.Context) (session.View, error) {
	return c.session.State(ctx)
}

func (c *Client) GameState() (engine.GameState, bool) {
	return c.engine.CurrentState()
}

func (c *Client) ConnectionState() transport.ConnectionState {
	return c.transport.ConnectionState()
}

// OnConnectionStateChange registers fn for transport state changes. fn must
// not call Close.
func (c *Client) OnConnectionStateChange(fn func(transport.ConnectionState)) (unsubscribe func()) {
	return c.transport.OnConnectionStateChange(fn)
}

func (c *Client) SyncMode(gameID string) string {
	return c.router.SyncMode(gameID)
}

// Engine exposes the rule queries of the current game.
func (c *Client) Engine() *engine.Engine { return c.engine }

// Router allows extra listeners for server events.
func (c *Client) Router() *router.Router { return c.router }

// Close disconnects and releases everything New and Start acquired. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.transport.Disconnect()
		c.session.Close()
		c.wg.Wait()
		// follow may have connected between Disconnect and its exit.
		c.transport.Disconnect()

		if c.ownsStore {
			c.closeErr = multierr.Append(c.closeErr, c.store.Close())
		}
	})
	return c.closeErr
}
