package transport

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/packetprotocol"
)

// RequestHandler processes one BuildRequest forwarded by the coordinator.
type RequestHandler func(req *core.BuildRequest)

// Client is the worker-node side of the transport: it dials the
// coordinator, advertises its capacity and capabilities, then forwards
// incoming BuildRequest packets to Handler and lets the caller push
// BuildResults (and any other outbound packet) back.
type Client struct {
	NodeID  string
	Handler RequestHandler
	Metrics *Metrics
	Logger  *slog.Logger

	conn *Connection
}

// NewClient creates a Client. Dial must be called before it is usable.
func NewClient(nodeID string, handler RequestHandler, metrics *Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{NodeID: nodeID, Handler: handler, Metrics: metrics, Logger: logger.With("component", "transport_client", "node_id", nodeID)}
}

// Dial connects to the coordinator at addr (host:port) and sends the
// handshake.
func (c *Client) Dial(addr string, maxCPUCount int, supportsCallbacks bool) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/nodes/connect"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	c.conn = NewConnection(c.NodeID, conn, c.Metrics)

	payload, err := packetprotocol.Encode(packetprotocol.PacketTypeNodeConfiguration, &packetprotocol.NodeConfigurationPacket{
		NodeID:            c.NodeID,
		MaxCPUCount:       int32(maxCPUCount),
		SupportsCallbacks: supportsCallbacks,
	})
	if err != nil {
		c.conn.Close()
		return err
	}
	if err := c.conn.SendPacket(packetprotocol.PacketTypeNodeConfiguration, payload); err != nil {
		c.conn.Close()
		return err
	}
	c.Logger.Info("connected to coordinator", "addr", addr)
	return nil
}

// Run reads packets until the connection drops, dispatching
// BuildRequest packets to Handler. It blocks and should run in its own
// goroutine; callers that want reconnection should loop Dial/Run with
// backoff and bump Metrics.ReconnectTotal between attempts.
func (c *Client) Run() error {
	for {
		t, payload, err := c.conn.ReadPacket()
		if err != nil {
			return err
		}
		if t != packetprotocol.PacketTypeBuildRequest {
			c.Logger.Warn("unexpected packet type from coordinator", "packet_type", t.String())
			continue
		}
		var reqPacket packetprotocol.BuildRequestPacket
		if err := packetprotocol.Decode(payload, &reqPacket); err != nil {
			c.Logger.Warn("failed to decode build request packet", "error", err)
			continue
		}
		if c.Handler != nil {
			c.Handler(reqPacket.BuildRequest)
		}
	}
}

// SendResult reports res back to the coordinator.
func (c *Client) SendResult(res *core.BuildResult) error {
	payload, err := packetprotocol.Encode(packetprotocol.PacketTypeBuildResult, &packetprotocol.BuildResultPacket{BuildResult: res})
	if err != nil {
		return err
	}
	return c.conn.SendPacket(packetprotocol.PacketTypeBuildResult, payload)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ReconnectWithBackoff dials addr repeatedly with exponential backoff
// (capped at maxBackoff) until Dial succeeds or stop is closed.
func (c *Client) ReconnectWithBackoff(addr string, maxCPUCount int, supportsCallbacks bool, maxBackoff time.Duration, stop <-chan struct{}) error {
	backoff := 100 * time.Millisecond
	for {
		err := c.Dial(addr, maxCPUCount, supportsCallbacks)
		if err == nil {
			return nil
		}
		if c.Metrics != nil {
			c.Metrics.ReconnectTotal.Inc()
		}
		c.Logger.Warn("dial failed, retrying", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-stop:
			return err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
