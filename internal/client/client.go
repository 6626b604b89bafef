// Package client implements the participant-side runtime: the two-
// connection dial-and-authenticate handshake, a MagicBall facade (address
// and stream id generator; it submits no frames itself), and a full-message
// mode that
// assembles whole messages and dispatches them to Event/RPC handlers with
// RPC calls correlated by a single-owner table (spec.md §4.3, grounded on
// the original source's client.rs).
package client

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
	"github.com/skytfs/streammesh/pkg/logger"
)

// Config names the broker to dial, this participant's address, and the
// access key presented during the Auth handshake.
type Config struct {
	Host      string
	Addr      string
	AccessKey string
}

// Client holds both connections (write-direction: this process writes to
// the broker; read-direction: the broker writes to this process), the RPC
// correlation table, and the outbound frame queue.
type Client struct {
	cfg Config
	log *logger.Logger

	writeConn net.Conn
	readConn  net.Conn

	writeCh  chan []byte
	mb       *MagicBall
	hasher   *message.KeyHasher
	rpcTable *rpcTable
}

// Dial opens both connections to cfg.Host, authenticating each, and
// starts the outbound write pump. Call Serve afterwards to run the
// full-message dispatch loop. Client has no raw frame submission method and
// no per-event read callback; inbound messages reach the application only
// through Serve's handlers.
func Dial(cfg Config, log *logger.Logger) (*Client, error) {
	writeConn, err := net.Dial("tcp", cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("client: dial write-direction connection: %w", err)
	}
	if err := authenticate(writeConn, cfg.Addr, cfg.AccessKey); err != nil {
		writeConn.Close()
		return nil, fmt.Errorf("client: write-direction authorization: %w", err)
	}

	readConn, err := net.Dial("tcp", cfg.Host)
	if err != nil {
		writeConn.Close()
		return nil, fmt.Errorf("client: dial read-direction connection: %w", err)
	}
	k0, k1, err := authenticateAndReceiveSeed(readConn, cfg.Addr, cfg.AccessKey)
	if err != nil {
		writeConn.Close()
		readConn.Close()
		return nil, fmt.Errorf("client: read-direction authorization: %w", err)
	}
	hasher := message.NewKeyHasherWithSeed(k0, k1)

	var saltBytes [8]byte
	if _, err := rand.Read(saltBytes[:]); err != nil {
		writeConn.Close()
		readConn.Close()
		return nil, err
	}
	salt := binary.LittleEndian.Uint64(saltBytes[:])

	c := &Client{
		cfg:       cfg,
		log:       log,
		writeConn: writeConn,
		readConn:  readConn,
		writeCh:   make(chan []byte, 256),
		mb:        newMagicBall(cfg.Addr, salt),
		hasher:    hasher,
		rpcTable:  newRPCTable(),
	}
	go c.writePump()
	return c, nil
}

func (c *Client) writePump() {
	for buf := range c.writeCh {
		if _, err := c.writeConn.Write(buf); err != nil {
			c.log.Error("%s write-direction connection failed: %v", c.cfg.Addr, err)
			return
		}
	}
}

// MagicBall returns the facade stream-mode consumers use to obtain stream
// ids and identify themselves.
func (c *Client) MagicBall() *MagicBall {
	return c.mb
}

// Close shuts down both connections and the outbound queue.
func (c *Client) Close() error {
	close(c.writeCh)
	err1 := c.writeConn.Close()
	err2 := c.readConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Serve runs the full-message dispatch loop until the read-direction
// connection fails or ctx is done.
func (c *Client) Serve(ctx context.Context, eventHandler EventHandler, rpcHandler RpcHandler) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.readConn.Close()
		case <-done:
		}
	}()
	defer close(done)
	return c.dispatchLoop(ctx, eventHandler, rpcHandler)
}

// Publish sends an Event message under key, with rx recorded in its header
// (message.Broadcast for none in particular). The broker routes by key
// only, so every subscriber of key receives it whatever rx says.
func (c *Client) Publish(rx, key string, payload []byte) error {
	meta := &message.Meta{
		Tx:   c.mb.Addr(),
		Rx:   rx,
		Key:  key,
		Kind: message.KindEvent,
		Route: message.Route{
			Source: message.Participator{Service: c.mb.Addr()},
			Points: []message.Participator{{Service: c.mb.Addr()}},
		},
	}
	w := wire.NewWriter(&queueWriter{ch: c.writeCh}, c.mb.GetStreamID(), c.hasher.Hash(key), wire.TagEvent)
	return w.WriteWhole(meta, payload)
}

// Call sends an RPC request to rx and waits for its response, or returns
// ctx's error if it's cancelled first.
func (c *Client) Call(ctx context.Context, rx, key string, payload []byte) (CallResult, error) {
	correlationID := message.NewCorrelationID()

	meta := &message.Meta{
		Tx:            c.mb.Addr(),
		Rx:            rx,
		Key:           key,
		Kind:          message.KindRpcRequest,
		CorrelationID: &correlationID,
		Route: message.Route{
			Source: message.Participator{Service: c.mb.Addr()},
			Points: []message.Participator{{Service: c.mb.Addr()}},
		},
	}

	replyCh := c.rpcTable.register(correlationID)

	w := wire.NewWriter(&queueWriter{ch: c.writeCh}, c.mb.GetStreamID(), c.hasher.Hash(key), wire.TagRpcRequest)
	if err := w.WriteWhole(meta, payload); err != nil {
		c.rpcTable.cancel(correlationID)
		return CallResult{}, err
	}

	select {
	case result := <-replyCh:
		return result, nil
	case <-ctx.Done():
		if c.rpcTable.cancel(correlationID) {
			return CallResult{}, ctx.Err()
		}
		return <-replyCh, nil
	}
}
