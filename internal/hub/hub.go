// Package hub keeps the live game clients of one process, keyed by game id.
package hub

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/client"
)

var ErrExists = errors.New("session already registered")
var ErrStopped = errors.New("hub stopped")

type HubMsg interface{ isHubMsg() }

type Register struct {
	GameID string
	Client *client.Client
	Reply  chan error
}

type GetSession struct {
	GameID string
	Reply  chan *client.Client
}

type ListSessions struct {
	Reply chan []string
}

// RemoveSession unregisters a game. The removed client, or nil, is sent on
// Reply so the caller can close it outside the hub loop.
type RemoveSession struct {
	GameID string
	Reply  chan *client.Client
}

type ShutdownHub struct {
	Reply chan []*client.Client
}

func (Register) isHubMsg()      {}
func (GetSession) isHubMsg()    {}
func (ListSessions) isHubMsg()  {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*client.Client
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	log      *zap.Logger
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*client.Client),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		log:      log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				if _, ok := h.sessions[msg.GameID]; ok {
					msg.Reply <- ErrExists
					break
				}
				h.sessions[msg.GameID] = msg.Client
				h.log.Info("session registered", zap.String("game_id", msg.GameID))
				msg.Reply <- nil

			case GetSession:
				msg.Reply <- h.sessions[msg.GameID] // may be nil

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				msg.Reply <- ids

			case RemoveSession:
				c := h.sessions[msg.GameID]
				delete(h.sessions, msg.GameID)
				msg.Reply <- c

			case ShutdownHub:
				out := make([]*client.Client, 0, len(h.sessions))
				for _, c := range h.sessions {
					out = append(out, c)
				}
				clear(h.sessions)
				msg.Reply <- out
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

func recv[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		// the loop may have answered right before stopping
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrStopped
		}
	}
}

func (h *Hub) Register(ctx context.Context, gameID string, c *client.Client) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, Register{GameID: gameID, Client: c, Reply: reply}); err != nil {
		return err
	}
	err, rerr := recv(ctx, h, reply)
	if rerr != nil {
		return rerr
	}
	return err
}

// Get returns nil when no client is registered under gameID.
func (h *Hub) Get(ctx context.Context, gameID string) (*client.Client, error) {
	reply := make(chan *client.Client, 1)
	if err := h.send(ctx, GetSession{GameID: gameID, Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

// List returns the registered game ids in order.
func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.send(ctx, ListSessions{Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h, reply)
}

// Remove unregisters and closes the client of gameID, if any.
func (h *Hub) Remove(ctx context.Context, gameID string) error {
	reply := make(chan *client.Client, 1)
	if err := h.send(ctx, RemoveSession{GameID: gameID, Reply: reply}); err != nil {
		return err
	}
	c, err := recv(ctx, h, reply)
	if err != nil || c == nil {
		return err
	}
	return c.Close()
}

// Shutdown stops the hub and closes every registered client.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan []*client.Client, 1)
	err := h.send(ctx, ShutdownHub{Reply: reply})
	var clients []*client.Client
	if err == nil {
		clients, err = recv(ctx, h, reply)
	}
	if errors.Is(err, ErrStopped) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range clients {
		err = multierr.Append(err, c.Close())
	}
	return err
}
