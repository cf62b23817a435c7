package websocket

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionViolation Action = "violation"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ViolationRequest reports one proctoring observation from the taker client.
// Count is the client's running violation count; it is informational only.
type ViolationRequest struct {
	Action Action                 `json:"action"`
	Kind   model.ProctorEventKind `json:"kind"`
	Count  int                    `json:"count"`
	At     time.Time              `json:"at"`
}

// PingRequest keeps the connection alive.
type PingRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventRecorded Event = "recorded"
	EventPong     Event = "pong"
)

type RecordedResponse struct {
	Event Event `json:"event"`
	Count int   `json:"count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// ResponseEnvelope is used by clients to peek at the event type.
type ResponseEnvelope struct {
	Event Event  `json:"event"`
	Error string `json:"error,omitempty"`
	Count int    `json:"count,omitempty"`
}
