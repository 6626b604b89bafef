package client

import (
	"context"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
)

// EventHandler processes a delivered Event message. Handlers run in their
// own goroutine per message, same as the original source's process_event
// spawn, so a slow handler for one stream never blocks dispatch of the
// next.
type EventHandler func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte)

// RpcResponse is what an RpcHandler returns on success: a payload and
// zero or more named attachments to stream back with the response.
type RpcResponse struct {
	Payload     []byte
	Attachments []Attachment
}

// Attachment is one named, sized blob streamed alongside a message.
type Attachment struct {
	Name string
	Data []byte
}

// RpcHandler processes a delivered RPC request and returns the response
// to send back, or an error to report as an RpcResponse(Err).
type RpcHandler func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) (RpcResponse, error)

type accumStream struct {
	meta        *message.Meta
	payload     []byte
	attachments [][]byte
}

func newAccumStream() *accumStream {
	return &accumStream{}
}

func (a *accumStream) ensureAttachments(n int) {
	for len(a.attachments) < n {
		a.attachments = append(a.attachments, nil)
	}
}

// dispatchLoop assembles frames into whole messages on the read-direction
// connection (the one the broker writes to) and dispatches each one,
// mirroring the original source's full_message_mode read loop.
func (c *Client) dispatchLoop(ctx context.Context, eventHandler EventHandler, rpcHandler RpcHandler) error {
	state := wire.NewState("client-read")
	streams := make(map[uint64]*accumStream)

	for {
		result, err := state.Read(c.readConn)
		if err != nil {
			return err
		}

		stream, ok := streams[result.StreamID]
		if !ok {
			stream = newAccumStream()
			streams[result.StreamID] = stream
		}

		switch result.Type {
		case wire.EventMsgMeta:
			stream.meta = result.Meta
			stream.ensureAttachments(len(result.Meta.Attachments))
		case wire.EventPayloadData, wire.EventPayloadFinished:
			stream.payload = append(stream.payload, result.Buf...)
		case wire.EventAttachmentData, wire.EventAttachmentFinished:
			stream.ensureAttachments(int(result.AttachIdx) + 1)
			stream.attachments[result.AttachIdx] = append(stream.attachments[result.AttachIdx], result.Buf...)
		case wire.EventMessageFinished:
			// A FinishAttachment MessageFinished repeats the bytes its
			// AttachmentFinished event already delivered, so only
			// piggybacked payload bytes are appended here.
			if result.Finish == wire.FinishPayload {
				stream.payload = append(stream.payload, result.Buf...)
			}
			delete(streams, result.StreamID)
			c.deliver(ctx, stream, eventHandler, rpcHandler)
		case wire.EventMessageAborted:
			delete(streams, result.StreamID)
		}
	}
}

func (c *Client) deliver(ctx context.Context, stream *accumStream, eventHandler EventHandler, rpcHandler RpcHandler) {
	meta := stream.meta
	if meta == nil {
		c.log.Error("message finished with no header, dropping")
		return
	}

	switch meta.Kind {
	case message.KindEvent:
		if eventHandler != nil {
			go eventHandler(ctx, meta, stream.payload, stream.attachments)
		}
	case message.KindRpcRequest:
		go c.serveRPC(ctx, meta, stream.payload, stream.attachments, rpcHandler)
	case message.KindRpcResponseOk, message.KindRpcResponseErr:
		if meta.CorrelationID == nil {
			c.log.Error("rpc response with no correlation id, dropping")
			return
		}
		c.rpcTable.deliver(*meta.CorrelationID, CallResult{
			Meta:        meta,
			Payload:     stream.payload,
			Attachments: stream.attachments,
			Failed:      meta.Kind == message.KindRpcResponseErr,
		})
	}
}

func (c *Client) serveRPC(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte, rpcHandler RpcHandler) {
	if rpcHandler == nil {
		return
	}
	resp, rpcErr := rpcHandler(ctx, meta, payload, attachments)

	respKind := message.KindRpcResponseOk
	if rpcErr != nil {
		respKind = message.KindRpcResponseErr
		resp = RpcResponse{Payload: []byte(`{"error":"` + rpcErr.Error() + `"}`)}
	}

	route := meta.Route
	route.Points = append(append([]message.Participator{}, route.Points...), message.Participator{Service: c.mb.Addr()})

	attachMeta := make([]message.AttachmentMeta, len(resp.Attachments))
	for i, a := range resp.Attachments {
		attachMeta[i] = message.AttachmentMeta{Name: a.Name, Size: uint64(len(a.Data))}
	}

	respMeta := &message.Meta{
		Tx:            c.mb.Addr(),
		Rx:            meta.Tx,
		Key:           meta.Key,
		Kind:          respKind,
		CorrelationID: meta.CorrelationID,
		Route:         route,
		Attachments:   attachMeta,
		PayloadSize:   uint64(len(resp.Payload)),
	}

	tag := wire.TagRpcResponseOk
	if respKind == message.KindRpcResponseErr {
		tag = wire.TagRpcResponseErr
	}

	w := wire.NewWriter(&queueWriter{ch: c.writeCh}, c.mb.GetStreamID(), c.hasher.Hash(meta.Key), tag)
	if err := w.WriteMeta(respMeta); err != nil {
		c.log.Error("failed to write rpc response header: %v", err)
		return
	}
	if err := w.WritePayload(resp.Payload); err != nil {
		c.log.Error("failed to write rpc response payload: %v", err)
		return
	}
	for i, a := range resp.Attachments {
		if err := w.WriteAttachment(uint8(i), a.Data); err != nil {
			c.log.Error("failed to write rpc response attachment %s: %v", a.Name, err)
			return
		}
	}
	if len(resp.Attachments) == 0 {
		if err := w.Finish(); err != nil {
			c.log.Error("failed to finish rpc response: %v", err)
		}
	}
}
