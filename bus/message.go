// Package bus implements the hybrid file-plus-HTTP message bus: a
// guaranteed inbox-file write path, a best-effort HTTP fast path, an
// inbox poller and a global-log watcher that converge on one handler,
// and at-most-once delivery tracking via a shared deliveries log.
package bus

import (
	"encoding/json"
	"time"
)

// Type is the kind of event a Message carries.
type Type string

const (
	TypeTaskAssign   Type = "task_assign"
	TypeTaskComplete Type = "task_complete"
	TypeMessage      Type = "message"
	TypeQuestion     Type = "question"
	TypeStatusUpdate Type = "status_update"
	TypeShutdown     Type = "shutdown"
)

// Broadcast is the reserved recipient id meaning "every agent".
const Broadcast = "broadcast"

// Attachment is one file carried by a message-multi send.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Bytes    []byte `json:"bytes"`
}

// Message is the wire envelope exchanged between agents (spec section 3).
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Type        Type         `json:"type"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Delivered   bool         `json:"delivered"`
	DeliveredAt *time.Time   `json:"deliveredAt,omitempty"`
	Signature   string       `json:"signature,omitempty"`
}

// For reports whether the message is addressed to agentID, either
// directly or via broadcast.
func (m Message) For(agentID string) bool {
	return m.To == agentID || m.To == Broadcast
}

// Delivery is one (message, recipient) delivery record.
type Delivery struct {
	MessageID   string    `json:"messageId"`
	DeliveredTo string    `json:"deliveredTo"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func marshalMessage(m Message) (json.RawMessage, error) {
	return json.Marshal(m)
}

func unmarshalMessage(raw json.RawMessage) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}
