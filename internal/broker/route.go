package broker

import (
	"errors"
	"io"
	"net"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
)

// kindOf maps a frame's on-wire message-kind tag to the routing-table
// class it belongs to. Routing happens per frame, not per logical
// message: every frame of a stream carries the same key hash and kind
// tag, so the broker can forward frames one at a time without
// reassembling the message they belong to (spec.md §4.2).
func kindOf(tag wire.MsgKindTag) message.Kind {
	switch tag {
	case wire.TagEvent:
		return message.KindEvent
	case wire.TagRpcRequest:
		return message.KindRpcRequest
	case wire.TagRpcResponseOk:
		return message.KindRpcResponseOk
	default:
		return message.KindRpcResponseErr
	}
}

// isConnError reports whether err is fatal to the connection: a clean or
// abrupt close, or a protocol violation. Frame boundaries in this protocol
// are always fixed-size, so a malformed frame never desyncs the stream at
// the byte level — but spec.md §7 still treats any protocol error as fatal
// to the connection rather than something to log and skip past, the same
// as a closed socket.
func isConnError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, wire.ErrProtocol) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
