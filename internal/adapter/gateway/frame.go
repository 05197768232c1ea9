package gateway

import "encoding/json"

// FrameType identifies the kind of frame on the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the envelope exchanged with operator clients.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`      // request/response correlation
	Payload json.RawMessage `json:"payload,omitempty"` // request params or response body
	Error   string          `json:"error,omitempty"`
}

// RequestPayload is the body of an inbound request frame.
type RequestPayload struct {
	SessionID string            `json:"session_id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
