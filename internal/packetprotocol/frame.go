// Package packetprotocol implements the framed binary wire format the
// coordinator and worker nodes exchange. Framing is deliberately built
// on encoding/binary rather than a third-party serialization library:
// it requires an exact byte layout ([1-byte type][4-byte
// length][payload]) that no generic codec models, so this piece stays
// on the standard library (see DESIGN.md).
package packetprotocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/buildmesh/enginecore/internal/core"
)

// PacketType identifies the kind of payload a frame carries.
type PacketType byte

const (
	PacketTypeBuildRequest PacketType = iota + 1
	PacketTypeBuildRequestConfiguration
	PacketTypeBuildResult
	PacketTypeNodeConfiguration
	PacketTypeLogMessage
	PacketTypeTaskHostConfiguration
	PacketTypeTaskHostTaskComplete
	PacketTypeTaskHostCallbackQueryRequest
	PacketTypeTaskHostCallbackQueryResponse
	PacketTypeTaskHostCallbackResourceRequest
	PacketTypeTaskHostCallbackResourceResponse
	PacketTypeNodeShutdown
	PacketTypeBuildSubmissionStarted
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeBuildRequest:
		return "BuildRequest"
	case PacketTypeBuildRequestConfiguration:
		return "BuildRequestConfiguration"
	case PacketTypeBuildResult:
		return "BuildResult"
	case PacketTypeNodeConfiguration:
		return "NodeConfiguration"
	case PacketTypeLogMessage:
		return "LogMessage"
	case PacketTypeTaskHostConfiguration:
		return "TaskHostConfiguration"
	case PacketTypeTaskHostTaskComplete:
		return "TaskHostTaskComplete"
	case PacketTypeTaskHostCallbackQueryRequest:
		return "TaskHostCallbackQueryRequest"
	case PacketTypeTaskHostCallbackQueryResponse:
		return "TaskHostCallbackQueryResponse"
	case PacketTypeTaskHostCallbackResourceRequest:
		return "TaskHostCallbackResourceRequest"
	case PacketTypeTaskHostCallbackResourceResponse:
		return "TaskHostCallbackResourceResponse"
	case PacketTypeNodeShutdown:
		return "NodeShutdown"
	case PacketTypeBuildSubmissionStarted:
		return "BuildSubmissionStarted"
	default:
		return fmt.Sprintf("PacketType(%d)", byte(t))
	}
}

// maxFramePayload bounds a single frame's payload to guard against a
// corrupt length prefix causing an unbounded allocation.
const maxFramePayload = 256 << 20

// WriteFrame writes one [type][length][payload] frame.
func WriteFrame(w io.Writer, t PacketType, payload []byte) error {
	header := make([]byte, 5)
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return core.NewBuildError(core.ErrorKindSerializationFailure, fmt.Sprintf("write frame header: %v", err))
	}
	if _, err := w.Write(payload); err != nil {
		return core.NewBuildError(core.ErrorKindSerializationFailure, fmt.Sprintf("write frame payload: %v", err))
	}
	return nil
}

// ReadFrame reads one frame's type and payload from r.
func ReadFrame(r io.Reader) (PacketType, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, core.NewBuildError(core.ErrorKindSerializationFailure, fmt.Sprintf("read frame header: %v", err))
	}
	t := PacketType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFramePayload {
		return 0, nil, core.NewInternalError("frame payload length %d exceeds maximum %d", length, maxFramePayload)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, core.NewBuildError(core.ErrorKindSerializationFailure, fmt.Sprintf("read frame payload: %v", err))
	}
	return t, payload, nil
}
