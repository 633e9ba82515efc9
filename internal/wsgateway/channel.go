// Package wsgateway implements the tunnel control channel over a
// WebSocket upgrade: the only Channel implementation the tunnel core
// depends on.
package wsgateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexustunnel/relay/internal/tunnel"
)

const writeWait = 10 * time.Second

// wsChannel adapts a *websocket.Conn to tunnel.Channel. Writes are
// serialized with writeMu; tunnel.Tunnel additionally serializes its own
// sends, so this mutex also guards pings issued by the heartbeat loop
// racing an in-flight request frame.
type wsChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) Send(msg *tunnel.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) Close(statusCode int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		closeMsg := websocket.FormatCloseMessage(statusCode, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
