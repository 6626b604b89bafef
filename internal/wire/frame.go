// Package wire implements the fixed-size frame codec and per-connection
// read state machine described in section 4.1 of the protocol: every
// message on a broker connection is a sequence of frames sharing a stream
// id, read and written one frame at a time so large attachments never need
// to be held whole in memory.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DataBufSize is the fixed size of a frame's payload area.
const DataBufSize = 4096

// HeaderSize is the size, in bytes, of everything in a frame but the
// payload area: stream id (8) + kind (1) + attachment index (1) +
// valid byte count (2) + key hash (8) + message kind tag (1).
const HeaderSize = 8 + 1 + 1 + 2 + 8 + 1

// FrameSize is the total fixed size of one frame on the wire.
const FrameSize = HeaderSize + DataBufSize

// Kind tags the role a frame plays within its stream.
type Kind uint8

const (
	KindMsgMeta Kind = iota
	KindPayloadData
	KindPayloadFinished
	KindAttachmentData
	KindAttachmentFinished
	KindMessageFinished
	KindMessageAborted
)

func (k Kind) String() string {
	switch k {
	case KindMsgMeta:
		return "MsgMeta"
	case KindPayloadData:
		return "PayloadData"
	case KindPayloadFinished:
		return "PayloadFinished"
	case KindAttachmentData:
		return "AttachmentData"
	case KindAttachmentFinished:
		return "AttachmentFinished"
	case KindMessageFinished:
		return "MessageFinished"
	case KindMessageAborted:
		return "MessageAborted"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// MsgKindTag is the message-kind carried in every frame of a stream once
// the stream's metadata is decided, so routing hops never need to parse
// metadata to tell events, requests, and responses apart.
type MsgKindTag uint8

const (
	TagEvent MsgKindTag = iota
	TagRpcRequest
	TagRpcResponseOk
	TagRpcResponseErr
)

// Frame is the unit exchanged on the wire. Data is always DataBufSize
// bytes long; only Data[:N] is meaningful.
type Frame struct {
	StreamID  uint64
	Kind      Kind
	AttachIdx uint8
	N         uint16
	KeyHash   uint64
	MsgKind   MsgKindTag
	Data      [DataBufSize]byte
}

// Payload returns the meaningful slice of the frame's data area.
func (f *Frame) Payload() []byte {
	return f.Data[:f.N]
}

// Encode writes the frame's wire representation into buf, which must be
// at least FrameSize bytes long.
func (f *Frame) Encode(buf []byte) {
	if len(buf) < FrameSize {
		panic("wire: Encode buffer too small")
	}
	binary.BigEndian.PutUint64(buf[0:8], f.StreamID)
	buf[8] = byte(f.Kind)
	buf[9] = f.AttachIdx
	binary.BigEndian.PutUint16(buf[10:12], f.N)
	binary.BigEndian.PutUint64(buf[12:20], f.KeyHash)
	buf[20] = byte(f.MsgKind)
	copy(buf[HeaderSize:FrameSize], f.Data[:])
}

// Decode populates the frame from buf, which must be at least FrameSize
// bytes long.
func (f *Frame) Decode(buf []byte) error {
	if len(buf) < FrameSize {
		return fmt.Errorf("wire: short frame buffer (%d bytes)", len(buf))
	}
	f.StreamID = binary.BigEndian.Uint64(buf[0:8])
	f.Kind = Kind(buf[8])
	f.AttachIdx = buf[9]
	f.N = binary.BigEndian.Uint16(buf[10:12])
	if int(f.N) > DataBufSize {
		return fmt.Errorf("%w: valid byte count %d exceeds buffer size %d", ErrProtocol, f.N, DataBufSize)
	}
	f.KeyHash = binary.BigEndian.Uint64(buf[12:20])
	f.MsgKind = MsgKindTag(buf[20])
	copy(f.Data[:], buf[HeaderSize:FrameSize])
	return nil
}

// WriteTo writes the frame to w using a single stack-allocated buffer.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var buf [FrameSize]byte
	f.Encode(buf[:])
	n, err := w.Write(buf[:])
	return int64(n), err
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var buf [FrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	f := &Frame{}
	if err := f.Decode(buf[:]); err != nil {
		return nil, err
	}
	return f, nil
}
