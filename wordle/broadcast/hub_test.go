package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"wordroom/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	failErr error
	block   chan struct{}
	closed  bool
}

func (c *fakeConn) Write(data []byte) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) events(t *testing.T) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Event, 0, len(c.frames))
	for _, f := range c.frames {
		var e models.Event
		require.NoError(t, json.Unmarshal(f, &e))
		out = append(out, e)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func chat(roomID string, version int64, content string) models.Event {
	return models.NewEvent(roomID, version, time.Now(), models.Chat{Sender: "alice", Content: content})
}

func TestHub_BroadcastInOrder(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	a, b := &fakeConn{}, &fakeConn{}
	_, err := hub.Subscribe("r1", "alice", a)
	require.NoError(t, err)
	_, err = hub.Subscribe("r1", "bob", b)
	require.NoError(t, err)
	other := &fakeConn{}
	_, err = hub.Subscribe("r2", "carol", other)
	require.NoError(t, err)

	hub.Broadcast(context.Background(), "r1", chat("r1", 2, "one"), chat("r1", 3, "two"), chat("r1", 4, "three"))

	for _, c := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return c.count() == 3 }, time.Second, 5*time.Millisecond)
		events := c.events(t)
		assert.Equal(t, "one", events[0].Payload.(models.Chat).Content)
		assert.Equal(t, "two", events[1].Payload.(models.Chat).Content)
		assert.Equal(t, "three", events[2].Payload.(models.Chat).Content)
		assert.Equal(t, int64(4), events[2].Version)
	}
	assert.Equal(t, 0, other.count())
}

func TestHub_Audience(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	player, watcher := &fakeConn{}, &fakeConn{}
	_, err := hub.Subscribe("r1", "bob", player)
	require.NoError(t, err)
	_, err = hub.Subscribe("r1", "eve", watcher)
	require.NoError(t, err)

	start := models.NewEvent("r1", 2, time.Now(), models.GameStart{WordLength: 6, Players: []string{"bob"}})
	withWord := start
	withWord.Payload = models.GameStart{WordLength: 6, Word: "PYTHON", Players: []string{"bob"}}

	hub.Broadcast(context.Background(), "r1",
		withWord.To(models.Audience{Only: []string{"bob"}}),
		start.To(models.Audience{Except: []string{"bob"}}),
	)

	require.Eventually(t, func() bool { return player.count() == 1 && watcher.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "PYTHON", player.events(t)[0].Payload.(models.GameStart).Word)
	assert.Empty(t, watcher.events(t)[0].Payload.(models.GameStart).Word)
}

func TestHub_FailedWriteRemovesOnlyThatConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	bad := &fakeConn{failErr: errors.New("broken pipe")}
	good := &fakeConn{}
	_, err := hub.Subscribe("r1", "bad", bad)
	require.NoError(t, err)
	_, err = hub.Subscribe("r1", "good", good)
	require.NoError(t, err)

	hub.Broadcast(context.Background(), "r1", chat("r1", 2, "hello"))

	require.Eventually(t, bad.isClosed, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(hub.Subscribers("r1")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"good"}, hub.Subscribers("r1"))

	hub.Broadcast(context.Background(), "r1", chat("r1", 3, "again"))
	require.Eventually(t, func() bool { return good.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHub_FullOutboxDropsSlowConnection(t *testing.T) {
	hub := NewHub(zap.NewNop(), WithOutboxSize(1))

	slow := &fakeConn{block: make(chan struct{})}
	sub, err := hub.Subscribe("r1", "slow", slow)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		hub.Broadcast(context.Background(), "r1", chat("r1", int64(i+2), "spam"))
	}

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscriber was not dropped")
	}
	assert.Empty(t, hub.Subscribers("r1"))

	close(slow.block)
	hub.Close()
}

func TestHub_UnsubscribeDiscardsEmptyRoom(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	conn := &fakeConn{}
	sub, err := hub.Subscribe("r1", "alice", conn)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, hub.Subscribers("r1"))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	hub.mu.Lock()
	_, exists := hub.rooms["r1"]
	hub.mu.Unlock()
	assert.False(t, exists)
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
}

func TestHub_CloseRejectsNewSubscriptions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := &fakeConn{}
	_, err := hub.Subscribe("r1", "alice", conn)
	require.NoError(t, err)

	hub.Close()
	assert.True(t, conn.isClosed())

	_, err = hub.Subscribe("r1", "bob", &fakeConn{})
	assert.ErrorIs(t, err, ErrHubClosed)
}

type recordingMirror struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *recordingMirror) Mirror(ctx context.Context, roomID string, events []models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func TestHub_MirrorGetsPublicEventsOnly(t *testing.T) {
	mirror := &recordingMirror{}
	hub := NewHub(zap.NewNop(), WithMirror(mirror))
	defer hub.Close()

	secret := models.NewEvent("r1", 2, time.Now(), models.GameStart{Word: "PYTHON"}).To(models.Audience{Only: []string{"bob"}})
	hub.Broadcast(context.Background(), "r1", secret, chat("r1", 2, "hi"))

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	require.Len(t, mirror.events, 1)
	assert.Equal(t, models.EventChat, mirror.events[0].Type)
}

func TestKafkaMessages(t *testing.T) {
	msgs, err := kafkaMessages("r1", []models.Event{chat("r1", 2, "hi")})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("r1"), msgs[0].Key)
	assert.Equal(t, "chat", string(msgs[0].Headers[0].Value))

	var e models.Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &e))
	assert.Equal(t, "hi", e.Payload.(models.Chat).Content)
}

// gatedRelay fails every subscription attempt until open is closed, then
// echoes published batches straight back to the hub.
type gatedRelay struct {
	open chan struct{}
	up   chan struct{}

	mu        sync.Mutex
	attempts  int
	published int
	deliver   func(string, []models.Event)
}

func (r *gatedRelay) Subscribe(ctx context.Context, ready func(), deliver func(string, []models.Event)) error {
	r.mu.Lock()
	r.attempts++
	r.mu.Unlock()
	select {
	case <-r.open:
	default:
		return errors.New("connection refused")
	}
	r.mu.Lock()
	r.deliver = deliver
	r.mu.Unlock()
	ready()
	close(r.up)
	<-ctx.Done()
	return ctx.Err()
}

func (r *gatedRelay) Publish(ctx context.Context, roomID string, events []models.Event) error {
	r.mu.Lock()
	r.published++
	deliver := r.deliver
	r.mu.Unlock()
	deliver(roomID, events)
	return nil
}

func (r *gatedRelay) stats() (attempts, published int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts, r.published
}

func TestHub_RelayResubscribesAndDeliversLocallyMeanwhile(t *testing.T) {
	relay := &gatedRelay{open: make(chan struct{}), up: make(chan struct{})}
	hub := NewHub(zap.NewNop(), WithRelay(relay), WithRelayBackoff(5*time.Millisecond))
	defer hub.Close()

	conn := &fakeConn{}
	_, err := hub.Subscribe("r1", "alice", conn)
	require.NoError(t, err)

	hub.Broadcast(context.Background(), "r1", chat("r1", 2, "while down"))
	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, 5*time.Millisecond)
	_, published := relay.stats()
	assert.Zero(t, published)

	require.Eventually(t, func() bool {
		attempts, _ := relay.stats()
		return attempts >= 2
	}, time.Second, 5*time.Millisecond, "subscription is retried")

	close(relay.open)
	select {
	case <-relay.up:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never resubscribed")
	}

	hub.Broadcast(context.Background(), "r1", chat("r1", 3, "via relay"))
	require.Eventually(t, func() bool { return conn.count() == 2 }, time.Second, 5*time.Millisecond)
	_, published = relay.stats()
	assert.Equal(t, 1, published)

	got := conn.events(t)
	assert.Equal(t, "while down", got[0].Payload.(models.Chat).Content)
	assert.Equal(t, "via relay", got[1].Payload.(models.Chat).Content)
}
