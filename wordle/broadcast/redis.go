package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"wordroom/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "wordroom:room:"

// RoomChannel is the Redis Pub/Sub channel carrying a room's events.
func RoomChannel(roomID string) string {
	return channelPrefix + roomID
}

// relayedEvent keeps the audience, which the event's own JSON form omits.
type relayedEvent struct {
	Audience models.Audience `json:"audience"`
	Event    models.Event    `json:"event"`
}

type relayEnvelope struct {
	RoomID string         `json:"roomId"`
	Events []relayedEvent `json:"events"`
}

// RedisRelay publishes event batches on a per-room channel and pattern
// subscribes to all of them.
type RedisRelay struct {
	rdb    *redis.Client
	logger *zap.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedisRelay(rdb *redis.Client, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, logger: logger, ready: make(chan struct{})}
}

// Ready is closed the first time the pattern subscription is confirmed by Redis.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

func (r *RedisRelay) Publish(ctx context.Context, roomID string, events []models.Event) error {
	env := relayEnvelope{RoomID: roomID, Events: make([]relayedEvent, len(events))}
	for i, e := range events {
		env.Events[i] = relayedEvent{Audience: e.Audience, Event: e}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, RoomChannel(roomID), data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, ready func(), deliver func(roomID string, events []models.Event)) error {
	pubsub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// 購読が確立するまで待つ
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ready()
	r.readyOnce.Do(func() { close(r.ready) })

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping malformed relay message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			roomID := env.RoomID
			if roomID == "" {
				roomID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			events := make([]models.Event, len(env.Events))
			for i, re := range env.Events {
				events[i] = re.Event.To(re.Audience)
			}
			deliver(roomID, events)
		}
	}
}
