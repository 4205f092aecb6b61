package websockets

// MessageType defines the type of a WebSocket message.
type MessageType string

const (
	// MessageTypeNotification carries a newly created notification record.
	MessageTypeNotification MessageType = "notification"
)

// Message represents a generic WebSocket message.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}
