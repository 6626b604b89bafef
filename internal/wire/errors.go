package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for the read state machine, checked with errors.Is. Every
// sentinel below ErrProtocol wraps it, so errors.Is(err, ErrProtocol) holds
// for all of them.
var (
	// ErrProtocol is returned for any malformed frame or sequence
	// violation. It is fatal to the connection.
	ErrProtocol = errors.New("wire: protocol error")

	// ErrFrameBeforeMeta is returned when a non-MsgMeta frame arrives for
	// a stream id that has never seen a MsgMeta frame.
	ErrFrameBeforeMeta = fmt.Errorf("%w: frame received before MsgMeta", ErrProtocol)

	// ErrPayloadOverrun is returned when a PayloadData/PayloadFinished
	// frame would consume more bytes than the declared payload length.
	ErrPayloadOverrun = fmt.Errorf("%w: payload frame exceeds declared length", ErrProtocol)

	// ErrPayloadFinishedMismatch is returned when PayloadFinished doesn't
	// consume exactly the remaining declared payload bytes.
	ErrPayloadFinishedMismatch = fmt.Errorf("%w: payload finished with remaining bytes unequal to frame length", ErrProtocol)

	// ErrAttachmentIndex is returned when an attachment frame names an
	// index outside the declared attachment list.
	ErrAttachmentIndex = fmt.Errorf("%w: attachment index out of range", ErrProtocol)

	// ErrAttachmentOverrun mirrors ErrPayloadOverrun for attachments.
	ErrAttachmentOverrun = fmt.Errorf("%w: attachment frame exceeds declared length", ErrProtocol)

	// ErrMetaDecode is returned when the MsgMeta JSON blob fails to parse.
	ErrMetaDecode = fmt.Errorf("%w: failed to decode message metadata", ErrProtocol)
)
