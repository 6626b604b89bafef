package wire

import (
	"encoding/binary"
	"io"

	"github.com/skytfs/streammesh/internal/message"
)

// Writer serializes one logical message into the frame sequence described
// by the read state machine in state.go: a MsgMeta header (length-prefixed
// and possibly split across frames), an optional payload terminated by
// PayloadFinished, zero or more attachments each terminated by
// AttachmentFinished, and — only when there are no attachments, since the
// read side treats the last AttachmentFinished as the implicit message
// terminator — a trailing MessageFinished frame.
//
// A Writer is single-stream and not safe for concurrent use; callers
// serialize writes for a given connection through one queue, same as the
// teacher's per-socket write task (spec.md §5).
type Writer struct {
	w        io.Writer
	streamID uint64
	keyHash  uint64
	msgKind  MsgKindTag
}

// NewWriter returns a Writer that frames stream streamID on w, tagging
// every frame with keyHash and msgKind so routing hops never need to
// inspect metadata.
func NewWriter(w io.Writer, streamID uint64, keyHash uint64, msgKind MsgKindTag) *Writer {
	return &Writer{w: w, streamID: streamID, keyHash: keyHash, msgKind: msgKind}
}

func (wr *Writer) frame(kind Kind, attachIdx uint8, data []byte) *Frame {
	f := &Frame{
		StreamID:  wr.streamID,
		Kind:      kind,
		AttachIdx: attachIdx,
		N:         uint16(len(data)),
		KeyHash:   wr.keyHash,
		MsgKind:   wr.msgKind,
	}
	copy(f.Data[:], data)
	return f
}

func (wr *Writer) writeChunks(kind Kind, attachIdx uint8, data []byte, finishKind Kind) error {
	for len(data) > DataBufSize {
		if _, err := wr.frame(kind, attachIdx, data[:DataBufSize]).WriteTo(wr.w); err != nil {
			return err
		}
		data = data[DataBufSize:]
	}
	_, err := wr.frame(finishKind, attachIdx, data).WriteTo(wr.w)
	return err
}

// WriteMeta encodes and sends the message header. Per spec.md §4.1 the
// header is length-prefixed with a 4-byte big-endian count so the reader
// knows when a multi-frame header is complete; the prefix shares the first
// MsgMeta frame's payload area with as much of the JSON body as fits.
func (wr *Writer) WriteMeta(meta *message.Meta) error {
	body, err := meta.Encode()
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))

	first := make([]byte, 0, DataBufSize)
	first = append(first, lenPrefix[:]...)
	room := DataBufSize - len(first)
	if room > len(body) {
		room = len(body)
	}
	first = append(first, body[:room]...)
	rest := body[room:]

	if len(rest) == 0 {
		_, err := wr.frame(KindMsgMeta, 0, first).WriteTo(wr.w)
		return err
	}
	if _, err := wr.frame(KindMsgMeta, 0, first).WriteTo(wr.w); err != nil {
		return err
	}
	for len(rest) > DataBufSize {
		if _, err := wr.frame(KindMsgMeta, 0, rest[:DataBufSize]).WriteTo(wr.w); err != nil {
			return err
		}
		rest = rest[DataBufSize:]
	}
	_, err = wr.frame(KindMsgMeta, 0, rest).WriteTo(wr.w)
	return err
}

// WritePayload sends the message body, chunked into PayloadData frames and
// terminated by PayloadFinished. Call with an empty slice for
// payload-free messages so the terminator still fires.
func (wr *Writer) WritePayload(payload []byte) error {
	return wr.writeChunks(KindPayloadData, 0, payload, KindPayloadFinished)
}

// WriteAttachment sends one declared attachment's bytes, chunked into
// AttachmentData frames and terminated by AttachmentFinished. idx must
// match the attachment's position in Meta.Attachments.
func (wr *Writer) WriteAttachment(idx uint8, data []byte) error {
	return wr.writeChunks(KindAttachmentData, idx, data, KindAttachmentFinished)
}

// Finish sends the trailing MessageFinished frame that terminates a
// message with no attachments. Messages that carry attachments must not
// call this: the last WriteAttachment call's AttachmentFinished frame is
// itself the terminator on the read side.
func (wr *Writer) Finish() error {
	_, err := wr.frame(KindMessageFinished, 0, nil).WriteTo(wr.w)
	return err
}

// Abort sends a MessageAborted frame, telling the peer to discard
// whatever partial state it has assembled for this stream.
func (wr *Writer) Abort() error {
	_, err := wr.frame(KindMessageAborted, 0, nil).WriteTo(wr.w)
	return err
}

// WriteWhole is a convenience for the common case of a message with no
// attachments and an in-memory payload: header, payload, terminator.
func (wr *Writer) WriteWhole(meta *message.Meta, payload []byte) error {
	meta.PayloadSize = uint64(len(payload))
	if err := wr.WriteMeta(meta); err != nil {
		return err
	}
	if err := wr.WritePayload(payload); err != nil {
		return err
	}
	return wr.Finish()
}
