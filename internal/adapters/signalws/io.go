package signalws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsConn is one live websocket connection: a buffered send queue drained by
// a single writer goroutine, and a closed flag so late sends fail fast
// instead of panicking.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan []byte, 32),
	}
}

func (c *wsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

// runConn drives the pumps for one connection and returns the read error
// that ended it.
func (c *Client) runConn(conn *wsConn) error {
	go c.writePump(conn)
	err := c.readPump(conn)
	conn.Close()
	return err
}

func (c *Client) writePump(conn *wsConn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-conn.send:
			if !ok {
				return
			}
			if err := conn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump set deadline")
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signalws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := conn.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(conn *wsConn) error {
	conn.ws.SetReadLimit(c.cfg.ReadLimit)
	deadline := c.cfg.PingPeriod + writeWait
	_ = conn.ws.SetReadDeadline(time.Now().Add(deadline))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(deadline))

		ev, err := decodeEvent(data)
		if err != nil {
			// Malformed or unknown frames never kill the connection.
			log.Warn().Err(err).Str("module", "signalws").Msg("dropping frame")
			continue
		}
		if ev != nil {
			c.emit(ev)
		}
	}
}
