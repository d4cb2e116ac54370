// Package transport carries packetprotocol packets between the
// coordinator and worker nodes over gorilla/websocket. It generalizes
// a browser-facing event bus into a node-facing one: a worker node is
// a single long-lived connection rather than a fan-out subscriber set,
// and a packet is addressed and correlated instead of broadcast.
package transport

import (
	"bytes"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/buildmesh/enginecore/internal/packetprotocol"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// Connection wraps one worker node's websocket, serializing writes (a
// websocket.Conn is not safe for concurrent writers) and exposing
// packetprotocol frames instead of raw bytes.
type Connection struct {
	NodeID string

	conn    *websocket.Conn
	metrics *Metrics

	writeMu sync.Mutex
	closed  bool
	mu      sync.Mutex

	stopPing chan struct{}
	once     sync.Once
}

// NewConnection wraps an already-upgraded websocket connection.
func NewConnection(nodeID string, conn *websocket.Conn, metrics *Metrics) *Connection {
	c := &Connection{NodeID: nodeID, conn: conn, metrics: metrics, stopPing: make(chan struct{})}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.keepalive()
	return c
}

func (c *Connection) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.stopPing:
			return
		}
	}
}

// SendPacket frames t/payload per packetprotocol's wire format and writes
// it as one binary websocket message (the websocket layer already
// delimits messages, so the frame's own length prefix is redundant on
// this transport but kept for format parity with any future stream
// transport that reuses the same packetprotocol.Encode output).
func (c *Connection) SendPacket(t packetprotocol.PacketType, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}
	start := time.Now()
	buf := new(bytes.Buffer)
	if err := packetprotocol.WriteFrame(buf, t, payload); err != nil {
		return err
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
	c.writeMu.Unlock()

	if c.metrics != nil {
		c.metrics.PacketLatencySeconds.Observe(time.Since(start).Seconds())
		direction := "sent"
		if err != nil {
			c.metrics.ErrorsTotal.WithLabelValues("write_failure").Inc()
		} else {
			c.metrics.PacketsTotal.WithLabelValues(t.String(), direction).Inc()
		}
	}
	return err
}

// ReadPacket blocks for the next packet on this connection.
func (c *Connection) ReadPacket() (packetprotocol.PacketType, []byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	t, payload, err := packetprotocol.ReadFrame(bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	if c.metrics != nil {
		c.metrics.PacketsTotal.WithLabelValues(t.String(), "received").Inc()
	}
	return t, payload, nil
}

// Close closes the underlying connection, idempotently.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.once.Do(func() { close(c.stopPing) })
	return c.conn.Close()
}
