package connection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wordroom/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionTTL is how long a reconnect session stays valid.
const SessionTTL = 24 * time.Hour

// Session binds a reconnect token to the room and username it was issued for.
type Session struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// Sessions issues and resolves reconnect tokens, so a client that reconnects
// (e.g. another tab) can resume as the same user.
type Sessions interface {
	Issue(ctx context.Context, s Session) (string, error)
	Resolve(ctx context.Context, id string) (Session, error)
}

// RedisSessions stores sessions under "session:<id>" with SessionTTL.
type RedisSessions struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisSessions(rdb *redis.Client, logger *zap.Logger) *RedisSessions {
	return &RedisSessions{rdb: rdb, logger: logger}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *RedisSessions) Issue(ctx context.Context, s Session) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	if err := r.rdb.Set(ctx, sessionKey(id), data, SessionTTL).Err(); err != nil {
		r.logger.Error("Error storing session info in Redis", zap.Error(err))
		return "", models.Internal(err, "store session")
	}
	return id, nil
}

func (r *RedisSessions) Resolve(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, models.NotFound("session id is empty")
	}
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, models.NotFound("session %s not found", id)
	}
	if err != nil {
		return Session{}, models.Internal(err, "load session")
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, models.Internal(err, "decode session")
	}
	return s, nil
}

// NoSessions is used when Redis is disabled: nothing is issued and every
// lookup misses.
type NoSessions struct{}

func (NoSessions) Issue(ctx context.Context, s Session) (string, error) {
	return "", nil
}

func (NoSessions) Resolve(ctx context.Context, id string) (Session, error) {
	return Session{}, models.NotFound("reconnect sessions are disabled")
}
