// Package message defines the logical message header carried in the first
// frame of every stream, routing-key hashing, and the subscription map the
// broker uses to fan frames out to subscribers.
package message

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Kind distinguishes events from RPC requests and responses. A response
// additionally carries whether the call succeeded.
type Kind int

const (
	KindEvent Kind = iota
	KindRpcRequest
	KindRpcResponseOk
	KindRpcResponseErr
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "Event"
	case KindRpcRequest:
		return "RpcRequest"
	case KindRpcResponseOk:
		return "RpcResponse(Ok)"
	case KindRpcResponseErr:
		return "RpcResponse(Err)"
	default:
		return "Unknown"
	}
}

// IsRpcResponse reports whether k is either RPC response variant.
func (k Kind) IsRpcResponse() bool {
	return k == KindRpcResponseOk || k == KindRpcResponseErr
}

// Participator identifies one hop a message has passed through, for loop
// detection and tracing (supplements spec.md's brief mention of "route"
// with the shape the original Rust source's Route/Participator gave it).
type Participator struct {
	Service string `json:"service"`
}

// Route carries the message's origin and the ordered list of participants
// it has visited.
type Route struct {
	Source Participator   `json:"source"`
	Points []Participator `json:"points"`
}

// AttachmentMeta declares one attachment's name and byte size ahead of its
// data frames.
type AttachmentMeta struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

// Meta is the logical message header: present in the first frame (or
// frames, if it spills past one frame's payload area) of every stream.
type Meta struct {
	Tx            string           `json:"tx"`
	Rx            string           `json:"rx"`
	Key           string           `json:"key"`
	Kind          Kind             `json:"kind"`
	CorrelationID *uuid.UUID       `json:"correlation_id,omitempty"`
	Route         Route            `json:"route"`
	Attachments   []AttachmentMeta `json:"attachments"`
	PayloadSize   uint64           `json:"payload_size"`
}

// Broadcast is the reserved Rx value meaning "all subscribers of Key".
const Broadcast = ""

// Encode serializes the metadata header to JSON.
func (m *Meta) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a JSON metadata header.
func Decode(data []byte) (*Meta, error) {
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewCorrelationID generates a fresh correlation id for an RPC request.
func NewCorrelationID() uuid.UUID {
	return uuid.New()
}
