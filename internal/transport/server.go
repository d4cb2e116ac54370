package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/buildmesh/enginecore/internal/core"
	"github.com/buildmesh/enginecore/internal/packetprotocol"
)

// NodeRegistrar is the subset of requestengine.Router a Server needs to
// admit a newly connected worker node.
type NodeRegistrar interface {
	RegisterNode(id string, maxCPUCount int)
}

// PacketHandler processes one packet arriving from nodeID.
type PacketHandler func(nodeID string, t packetprotocol.PacketType, payload []byte)

// Server is the coordinator-side websocket listener: worker nodes dial
// in, hand over a NodeConfiguration handshake, and are then available to
// Send (as requestengine.NodeTransport) and to have their packets
// dispatched to Handler.
type Server struct {
	Registrar NodeRegistrar
	Handler   PacketHandler
	Metrics   *Metrics
	Logger    *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewServer creates a Server. registrar and handler may be nil in tests
// that only exercise the HTTP plumbing.
func NewServer(registrar NodeRegistrar, handler PacketHandler, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Registrar: registrar,
		Handler:   handler,
		Metrics:   metrics,
		Logger:    logger.With("component", "transport_server"),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		conns:     make(map[string]*Connection),
	}
}

// Router builds the gorilla/mux router exposing the node connect
// endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/nodes/connect", s.handleConnect).Methods(http.MethodGet)
	return r
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	nodeConn := NewConnection("", conn, s.Metrics)

	t, payload, err := nodeConn.ReadPacket()
	if err != nil || t != packetprotocol.PacketTypeNodeConfiguration {
		s.Logger.Warn("node handshake failed", "error", err)
		nodeConn.Close()
		return
	}
	var handshake packetprotocol.NodeConfigurationPacket
	if err := packetprotocol.Decode(payload, &handshake); err != nil {
		s.Logger.Warn("node handshake decode failed", "error", err)
		nodeConn.Close()
		return
	}
	nodeConn.NodeID = handshake.NodeID

	s.mu.Lock()
	s.conns[handshake.NodeID] = nodeConn
	s.mu.Unlock()

	if s.Registrar != nil {
		s.Registrar.RegisterNode(handshake.NodeID, int(handshake.MaxCPUCount))
	}
	if s.Metrics != nil {
		s.Metrics.ConnectionsActive.Inc()
	}
	s.Logger.Info("worker node connected", "node_id", handshake.NodeID, "max_cpu_count", handshake.MaxCPUCount, "supports_callbacks", handshake.SupportsCallbacks)

	s.readLoop(nodeConn)
}

func (s *Server) readLoop(conn *Connection) {
	defer s.disconnect(conn)
	for {
		t, payload, err := conn.ReadPacket()
		if err != nil {
			return
		}
		if s.Handler != nil {
			s.Handler(conn.NodeID, t, payload)
		}
	}
}

func (s *Server) disconnect(conn *Connection) {
	conn.Close()
	s.mu.Lock()
	delete(s.conns, conn.NodeID)
	s.mu.Unlock()
	if s.Metrics != nil {
		s.Metrics.ConnectionsActive.Dec()
	}
	s.Logger.Info("worker node disconnected", "node_id", conn.NodeID)
}

// Send implements requestengine.NodeTransport: it frames req as a
// BuildRequestPacket and writes it to nodeID's connection.
func (s *Server) Send(ctx context.Context, nodeID string, req *core.BuildRequest) error {
	s.mu.RLock()
	conn, ok := s.conns[nodeID]
	s.mu.RUnlock()
	if !ok {
		return ErrNodeNotConnected
	}

	payload, err := packetprotocol.Encode(packetprotocol.PacketTypeBuildRequest, &packetprotocol.BuildRequestPacket{BuildRequest: req})
	if err != nil {
		return err
	}
	return conn.SendPacket(packetprotocol.PacketTypeBuildRequest, payload)
}

// SendResult frames and sends a BuildResult to nodeID (used by the
// worker-node side of the Server handler role, or for directly pushing a
// result to a requesting node).
func (s *Server) SendResult(nodeID string, res *core.BuildResult) error {
	s.mu.RLock()
	conn, ok := s.conns[nodeID]
	s.mu.RUnlock()
	if !ok {
		return ErrNodeNotConnected
	}
	payload, err := packetprotocol.Encode(packetprotocol.PacketTypeBuildResult, &packetprotocol.BuildResultPacket{BuildResult: res})
	if err != nil {
		return err
	}
	return conn.SendPacket(packetprotocol.PacketTypeBuildResult, payload)
}

// ConnectedNodes returns the currently connected node ids.
func (s *Server) ConnectedNodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}
