package log

import (
	"time"

	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the peer connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Endpoint is the client endpoint name.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message      *MessageEvent      `cbor:"10,keyasint,omitempty"` // Wire layer
	StateChange  *StateChangeEvent  `cbor:"11,keyasint,omitempty"` // Registration state
	Notification *NotificationEvent `cbor:"12,keyasint,omitempty"` // Observe push
	ControlMsg   *ControlMsgEvent   `cbor:"13,keyasint,omitempty"` // Ping/reset/close
	Error        *ErrorEventData    `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the connection layer.
	LayerTransport Layer = 0
	// LayerWire is the decoded CoAP message layer.
	LayerWire Layer = 1
	// LayerService is the client node layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response or notification.
	CategoryMessage Category = 0
	// CategoryControl indicates a control message (ping/reset/close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a decoded CoAP message at the wire layer.
type MessageEvent struct {
	// Type distinguishes request/response/notification.
	Type MessageType `cbor:"1,keyasint"`

	// Method of a request.
	Method wire.Method `cbor:"2,keyasint,omitempty"`

	// Path is the URI path of a request, or the observed path of a
	// notification.
	Path string `cbor:"3,keyasint,omitempty"`

	// Query holds the URI query options of a request.
	Query []string `cbor:"4,keyasint,omitempty"`

	// Code is the response code.
	Code *wire.Code `cbor:"5,keyasint,omitempty"`

	// ContentFormat of the payload, if any.
	ContentFormat *wire.Format `cbor:"6,keyasint,omitempty"`

	// Observe option value, if present.
	Observe *uint32 `cbor:"7,keyasint,omitempty"`

	// Token correlates requests, responses and notifications.
	Token []byte `cbor:"8,keyasint,omitempty"`

	// PayloadSize is the payload length in bytes.
	PayloadSize int `cbor:"9,keyasint,omitempty"`

	// Payload holds the payload bytes (may be truncated).
	Payload []byte `cbor:"10,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send (response only).
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"11,keyasint,omitempty"`
}

// MaxPayloadCapture is the number of payload bytes kept in a MessageEvent.
const MaxPayloadCapture = 256

// CapturePayload returns payload truncated to MaxPayloadCapture bytes.
func CapturePayload(payload []byte) []byte {
	if len(payload) > MaxPayloadCapture {
		payload = payload[:MaxPayloadCapture]
	}
	if len(payload) == 0 {
		return nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}

// MessageType distinguishes request/response/notification.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates an observe notification.
	MessageTypeNotification MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures registration and link lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityRegistration indicates a registration state change.
	StateEntityRegistration StateEntity = 0
	// StateEntityLink indicates a reconnect manager state change.
	StateEntityLink StateEntity = 1
	// StateEntityObservation indicates an observer was added or removed.
	StateEntityObservation StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityRegistration:
		return "REGISTRATION"
	case StateEntityLink:
		return "LINK"
	case StateEntityObservation:
		return "OBSERVATION"
	default:
		return "UNKNOWN"
	}
}

// NotificationEvent captures an observe notification pushed by the node.
type NotificationEvent struct {
	// Path is the observed path.
	Path string `cbor:"1,keyasint"`

	// Sequence is the observe sequence number.
	Sequence uint32 `cbor:"2,keyasint,omitempty"`

	// Forced is set for reports sent because pmax expired.
	Forced bool `cbor:"3,keyasint,omitempty"`
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Reason describes why a connection was closed.
	Reason string `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a CoAP ping (empty confirmable message).
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates the reset answering a ping.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgClose indicates a closed peer connection.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
