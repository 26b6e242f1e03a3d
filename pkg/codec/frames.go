package codec

import (
	"encoding/json"
	"fmt"

	"github.com/ereojs/ereo/pkg/common"
)

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Server frame types.
const (
	FrameData     = "data"
	FrameError    = "error"
	FrameComplete = "complete"
	FramePong     = "pong"
)

// ClientFrame is a message received over a WebSocket connection.
type ClientFrame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Path  string          `json:"path,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ServerFrame is a message emitted over a WebSocket connection.
type ServerFrame struct {
	Type  string     `json:"type"`
	ID    string     `json:"id,omitempty"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// DecodeClientFrame parses one inbound frame. Unknown or missing frame
// types are rejected here so the connection loop only sees well-formed
// frames.
func DecodeClientFrame(data []byte) (*ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	switch frame.Type {
	case FrameSubscribe, FrameUnsubscribe, FramePing:
		return &frame, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
}

// DataFrame builds a data frame for one produced subscription value.
func DataFrame(id string, value any) *ServerFrame {
	return &ServerFrame{Type: FrameData, ID: id, Data: value}
}

// ErrorFrame builds an error frame. The id may be empty for errors with
// no matching subscription, such as parse failures.
func ErrorFrame(id string, rpcErr *common.Error) *ServerFrame {
	return &ServerFrame{
		Type: FrameError,
		ID:   id,
		Error: &ErrorBody{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Details: rpcErr.Details,
		},
	}
}

// CompleteFrame builds the terminal frame for a naturally exhausted
// subscription.
func CompleteFrame(id string) *ServerFrame {
	return &ServerFrame{Type: FrameComplete, ID: id}
}

// PongFrame builds the heartbeat reply.
func PongFrame() *ServerFrame {
	return &ServerFrame{Type: FramePong}
}
