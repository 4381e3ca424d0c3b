package connection

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

// WebsocketConn adapts a gorilla connection to the hub's Conn. Only the hub's
// writer goroutine calls Write; Ping and Close use control frames, which
// gorilla allows concurrently with other writes.
type WebsocketConn struct {
	ws   *websocket.Conn
	once sync.Once
}

func NewWebsocketConn(ws *websocket.Conn) *WebsocketConn {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	// Pongを受け取るたびに読み取りデッドラインを延長
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &WebsocketConn{ws: ws}
}

func (c *WebsocketConn) Write(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *WebsocketConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *WebsocketConn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *WebsocketConn) Close() {
	c.once.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.ws.Close()
	})
}
