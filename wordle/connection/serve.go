// Package connection runs one real-time connection: it subscribes the socket
// to its room and relays the client's chat frames.
package connection

import (
	"context"
	"encoding/json"

	"wordroom/models"
	"wordroom/wordle/broadcast"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientConn is a connection the server can also read from.
type ClientConn interface {
	broadcast.Conn
	Read() ([]byte, error)
}

type Subscriber interface {
	Subscribe(roomID, username string, conn broadcast.Conn) (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
}

type ChatPoster interface {
	PostChat(ctx context.Context, roomID, username, content string) (models.Event, error)
}

type Server struct {
	hub    Subscriber
	chat   ChatPoster
	logger *zap.Logger
	limit  rate.Limit
	burst  int
}

// NewServer throttles each connection's chat to limit messages per second
// with the given burst.
func NewServer(hub Subscriber, chat ChatPoster, limit float64, burst int, logger *zap.Logger) *Server {
	if burst < 1 {
		burst = 1
	}
	return &Server{hub: hub, chat: chat, logger: logger, limit: rate.Limit(limit), burst: burst}
}

// Serve subscribes conn to roomID and reads client frames until the
// connection drops or ctx is done. The subscription is removed on return.
func (s *Server) Serve(ctx context.Context, roomID, username string, conn ClientConn) error {
	sub, err := s.hub.Subscribe(roomID, username, conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer s.hub.Unsubscribe(sub)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sub.Done():
		}
	}()

	log := s.logger.With(zap.String("roomID", roomID), zap.String("username", username))
	log.Info("client connected")
	defer log.Info("client disconnected")

	limiter := rate.NewLimiter(s.limit, s.burst)
	for {
		data, err := conn.Read()
		if err != nil {
			return nil
		}
		msg, ok := decodeClientMessage(data)
		if !ok {
			log.Debug("ignoring client frame", zap.ByteString("frame", data))
			continue
		}
		if !limiter.Allow() {
			log.Warn("chat rate limit exceeded")
			continue
		}
		if _, err := s.chat.PostChat(ctx, roomID, username, msg.Content); err != nil {
			log.Info("chat rejected", zap.Error(err))
		}
	}
}

// decodeClientMessage accepts {"type":"chat","content":...} and the bare
// {"content":...} form older clients send.
func decodeClientMessage(data []byte) (models.ClientMessage, bool) {
	var msg models.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, false
	}
	if msg.Type != "" && msg.Type != string(models.EventChat) {
		return msg, false
	}
	return msg, true
}
