package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
	"github.com/skytfs/streammesh/pkg/logger"
)

func newTestClient(t *testing.T, readConn net.Conn) *Client {
	t.Helper()
	hasher := message.NewKeyHasherWithSeed(1, 1)
	return &Client{
		cfg:      Config{Addr: "tester"},
		log:      logger.New("test"),
		readConn: readConn,
		writeCh:  make(chan []byte, 16),
		mb:       newMagicBall("tester", 0),
		hasher:   hasher,
		rpcTable: newRPCTable(),
	}
}

func TestDispatchLoopDeliversEvent(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	c := newTestClient(t, clientSide)

	received := make(chan []byte, 1)
	eventHandler := func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) {
		received <- payload
	}

	go c.dispatchLoop(context.Background(), eventHandler, nil)

	go func() {
		w := wire.NewWriter(serverSide, 1, 0, wire.TagEvent)
		meta := &message.Meta{Tx: "srv", Rx: "tester", Key: "Greeting", Kind: message.KindEvent}
		_ = w.WriteWhole(meta, []byte("hi there"))
	}()

	select {
	case payload := <-received:
		require.Equal(t, []byte("hi there"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event dispatch")
	}
}

func TestDispatchLoopServesRPCAndWritesResponse(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	c := newTestClient(t, clientSide)

	rpcHandler := func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) (RpcResponse, error) {
		return RpcResponse{Payload: []byte("pong")}, nil
	}

	go c.dispatchLoop(context.Background(), nil, rpcHandler)

	id := message.NewCorrelationID()
	go func() {
		w := wire.NewWriter(serverSide, 2, 0, wire.TagRpcRequest)
		meta := &message.Meta{Tx: "caller", Rx: "tester", Key: "Ping", Kind: message.KindRpcRequest, CorrelationID: &id}
		_ = w.WriteWhole(meta, []byte("ping"))
	}()

	select {
	case buf := <-c.writeCh:
		require.NotEmpty(t, buf)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rpc response to be queued")
	}
}

func TestDispatchLoopDeliversRPCResponseToCaller(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	c := newTestClient(t, clientSide)

	id := message.NewCorrelationID()
	replyCh := c.rpcTable.register(id)

	go c.dispatchLoop(context.Background(), nil, nil)

	go func() {
		w := wire.NewWriter(serverSide, 3, 0, wire.TagRpcResponseOk)
		meta := &message.Meta{Tx: "callee", Rx: "tester", Key: "Ping", Kind: message.KindRpcResponseOk, CorrelationID: &id}
		_ = w.WriteWhole(meta, []byte("pong"))
	}()

	select {
	case result := <-replyCh:
		require.Equal(t, []byte("pong"), result.Payload)
		require.False(t, result.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rpc response delivery")
	}
}

func TestDispatchLoopAccumulatesAttachments(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	c := newTestClient(t, clientSide)

	received := make(chan [][]byte, 1)
	eventHandler := func(ctx context.Context, meta *message.Meta, payload []byte, attachments [][]byte) {
		received <- attachments
	}

	go c.dispatchLoop(context.Background(), eventHandler, nil)

	go func() {
		w := wire.NewWriter(serverSide, 4, 0, wire.TagEvent)
		meta := &message.Meta{
			Tx: "srv", Rx: "tester", Key: "Upload", Kind: message.KindEvent,
			Attachments: []message.AttachmentMeta{{Name: "a", Size: 1}, {Name: "b", Size: 1}},
		}
		_ = w.WriteMeta(meta)
		_ = w.WritePayload(nil)
		_ = w.WriteAttachment(0, []byte("x"))
		_ = w.WriteAttachment(1, []byte("y"))
	}()

	select {
	case attachments := <-received:
		require.Equal(t, [][]byte{[]byte("x"), []byte("y")}, attachments)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for attachment dispatch")
	}
}
