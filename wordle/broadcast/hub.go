package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"wordroom/models"

	"go.uber.org/zap"
)

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

const (
	defaultOutboxSize   = 64
	defaultPingPeriod   = 30 * time.Second
	defaultRelayBackoff = 500 * time.Millisecond
	maxRelayBackoff     = 30 * time.Second
)

// Conn is the transport handle of one real-time connection.
type Conn interface {
	Write(data []byte) error
	Ping() error
	Close()
}

// Relay fans events out between coordinator instances. Publish sends one
// batch for a room. Subscribe blocks, calls ready once the subscription is
// confirmed, and hands every batch (including this instance's own) to
// deliver until ctx is done or the subscription fails.
type Relay interface {
	Publish(ctx context.Context, roomID string, events []models.Event) error
	Subscribe(ctx context.Context, ready func(), deliver func(roomID string, events []models.Event)) error
}

// Mirror receives a copy of every public event, e.g. for auditing.
type Mirror interface {
	Mirror(ctx context.Context, roomID string, events []models.Event) error
}

// Subscription is one connection registered under a room.
type Subscription struct {
	RoomID   string
	Username string

	conn   Conn
	outbox chan []byte
	done   chan struct{}
	once   sync.Once
}

// Done is closed once the subscription has been removed from the hub.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Hub is the per-process table of room subscriptions. It is created once at
// startup and torn down with Close.
type Hub struct {
	logger     *zap.Logger
	relay        Relay
	relayUp      atomic.Bool
	relayBackoff time.Duration
	mirror       Mirror
	outboxSize   int
	pingPeriod   time.Duration

	mu     sync.Mutex
	rooms  map[string]map[*Subscription]struct{}
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Hub)

// WithRelay routes broadcasts through r so every instance delivers them.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// WithOutboxSize bounds the number of undelivered frames per connection.
func WithOutboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.outboxSize = n
		}
	}
}

// WithRelayBackoff sets the first delay before resubscribing to a failed
// relay. The delay doubles on each failure up to 30s.
func WithRelayBackoff(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.relayBackoff = d
		}
	}
}

func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

func NewHub(logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		logger:       logger,
		relayBackoff: defaultRelayBackoff,
		outboxSize:   defaultOutboxSize,
		pingPeriod:   defaultPingPeriod,
		rooms:        make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	if h.relay != nil {
		h.wg.Add(1)
		go h.runRelay(ctx)
	}
	return h
}

// runRelay keeps the relay subscription alive until ctx is done. While it is
// down, Broadcast delivers to local subscribers only.
func (h *Hub) runRelay(ctx context.Context) {
	defer h.wg.Done()
	backoff := h.relayBackoff
	for {
		err := h.relay.Subscribe(ctx, func() {
			h.relayUp.Store(true)
			backoff = h.relayBackoff
			h.logger.Info("relay subscription established")
		}, h.Deliver)
		h.relayUp.Store(false)
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("relay subscription lost, delivering locally until it is back",
			zap.Duration("retry_in", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxRelayBackoff {
			backoff = maxRelayBackoff
		}
	}
}

// Subscribe registers conn under roomID and starts its writer.
func (h *Hub) Subscribe(roomID, username string, conn Conn) (*Subscription, error) {
	sub := &Subscription{
		RoomID:   roomID,
		Username: username,
		conn:     conn,
		outbox:   make(chan []byte, h.outboxSize),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	go h.writePump(sub)
	h.logger.Debug("subscribed", zap.String("roomID", roomID), zap.String("username", username))
	return sub, nil
}

// Unsubscribe removes sub and closes its connection. Calling it more than once
// is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	h.removeLocked(sub)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(sub *Subscription) {
	if subs, ok := h.rooms[sub.RoomID]; ok {
		delete(subs, sub)
		// 購読者がいなくなったルームのエントリは破棄
		if len(subs) == 0 {
			delete(h.rooms, sub.RoomID)
		}
	}
	sub.once.Do(func() { close(sub.done) })
}

// Subscribers lists the usernames currently subscribed to roomID.
func (h *Hub) Subscribers(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var names []string
	for sub := range h.rooms[roomID] {
		names = append(names, sub.Username)
	}
	return names
}

// Broadcast sends events for roomID to every subscriber, in order. It never
// fails: delivery problems only drop the affected connection.
//
// Order is guaranteed within one call only. Concurrent calls for the same
// room may reach subscribers in either order, so clients order events by
// their version.
func (h *Hub) Broadcast(ctx context.Context, roomID string, events ...models.Event) {
	if len(events) == 0 {
		return
	}

	if h.mirror != nil {
		if public := publicEvents(events); len(public) > 0 {
			if err := h.mirror.Mirror(ctx, roomID, public); err != nil {
				h.logger.Warn("failed to mirror events", zap.String("roomID", roomID), zap.Error(err))
			}
		}
	}

	if h.relay != nil {
		if !h.relayUp.Load() {
			h.logger.Warn("relay not subscribed, delivering locally", zap.String("roomID", roomID))
		} else {
			err := h.relay.Publish(ctx, roomID, events)
			if err == nil {
				return
			}
			h.logger.Error("relay publish failed, delivering locally", zap.String("roomID", roomID), zap.Error(err))
		}
	}
	h.Deliver(roomID, events)
}

func publicEvents(events []models.Event) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.Audience.IsPublic() {
			out = append(out, e)
		}
	}
	return out
}

// Deliver enqueues events for the local subscribers of roomID. Each event is
// encoded once. A subscriber whose outbox is full is dropped.
func (h *Hub) Deliver(roomID string, events []models.Event) {
	frames := make([][]byte, len(events))
	for i, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			h.logger.Error("failed to encode event", zap.String("type", string(e.Type)), zap.Error(err))
			continue
		}
		frames[i] = data
	}

	// 同じ呼び出しのイベントは全接続に同じ順序で積む
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[roomID] {
		for i, e := range events {
			if frames[i] == nil || !e.Audience.Allows(sub.Username) {
				continue
			}
			select {
			case sub.outbox <- frames[i]:
			default:
				h.logger.Warn("outbox full, dropping connection",
					zap.String("roomID", roomID), zap.String("username", sub.Username))
				h.removeLocked(sub)
			}
			if isDone(sub) {
				break
			}
		}
	}
}

func isDone(sub *Subscription) bool {
	select {
	case <-sub.done:
		return true
	default:
		return false
	}
}

func (h *Hub) writePump(sub *Subscription) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
		h.wg.Done()
	}()

	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.outbox:
			if err := sub.conn.Write(data); err != nil {
				h.logger.Info("write failed, removing connection",
					zap.String("roomID", sub.RoomID), zap.String("username", sub.Username), zap.Error(err))
				h.Unsubscribe(sub)
				return
			}
		case <-ticker.C:
			if err := sub.conn.Ping(); err != nil {
				h.logger.Info("ping failed, removing connection",
					zap.String("roomID", sub.RoomID), zap.String("username", sub.Username), zap.Error(err))
				h.Unsubscribe(sub)
				return
			}
		}
	}
}

// Close drops every subscription, stops the relay and waits for the writers.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, subs := range h.rooms {
		for sub := range subs {
			h.removeLocked(sub)
		}
	}
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
}
