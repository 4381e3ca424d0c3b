package connection

import (
	"context"
	"testing"

	"wordroom/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisSessions(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	sessions := NewRedisSessions(rdb, zap.NewNop())

	id, err := sessions.Issue(ctx, Session{RoomID: "r1", Username: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, SessionTTL, mr.TTL("session:"+id))

	s, err := sessions.Resolve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Session{RoomID: "r1", Username: "alice"}, s)

	_, err = sessions.Resolve(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)

	mr.FastForward(SessionTTL + 1)
	_, err = sessions.Resolve(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestNoSessions(t *testing.T) {
	ctx := context.Background()
	id, err := NoSessions{}.Issue(ctx, Session{RoomID: "r1", Username: "alice"})
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = NoSessions{}.Resolve(ctx, "anything")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
