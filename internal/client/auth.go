package client

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
)

type seedPayload struct {
	K0 uint64 `json:"k0"`
	K1 uint64 `json:"k1"`
}

// authenticate performs the Auth RPC handshake the broker expects on
// every connection before it will assign the connection a role. The
// broker never replies on the write-direction (first) connection, so this
// simply writes the request and returns once it's on the wire (spec.md
// §4.3, grounded on the original source's client.rs auth()).
func authenticate(conn net.Conn, addr, accessKey string) error {
	payload, err := json.Marshal(struct {
		AccessKey string `json:"access_key"`
	}{AccessKey: accessKey})
	if err != nil {
		return err
	}

	meta := &message.Meta{
		Tx:   addr,
		Rx:   "Server",
		Key:  "Auth",
		Kind: message.KindRpcRequest,
		Route: message.Route{
			Source: message.Participator{Service: addr},
			Points: []message.Participator{{Service: addr}},
		},
	}

	w := wire.NewWriter(conn, 0, 0, wire.TagRpcRequest)
	return w.WriteWhole(meta, payload)
}

// authenticateAndReceiveSeed performs the same handshake as authenticate,
// then reads the broker's reply on this (the read-direction) connection to
// recover the routing-key hash seed every participant must share with the
// broker (spec.md §3, §4.1, §9).
func authenticateAndReceiveSeed(conn net.Conn, addr, accessKey string) (k0, k1 uint64, err error) {
	if err := authenticate(conn, addr, accessKey); err != nil {
		return 0, 0, err
	}

	state := wire.NewState("client-auth-seed")
	var key string
	var payload []byte
	for {
		result, err := state.Read(conn)
		if err != nil {
			return 0, 0, err
		}
		switch result.Type {
		case wire.EventMsgMeta:
			key = result.Meta.Key
		case wire.EventPayloadData, wire.EventPayloadFinished:
			payload = append(payload, result.Buf...)
		case wire.EventMessageFinished:
			if result.Finish == wire.FinishPayload {
				payload = append(payload, result.Buf...)
			}
			if key != "Auth" {
				return 0, 0, fmt.Errorf("client: expected Auth response, got key %q", key)
			}
			var seed seedPayload
			if err := json.Unmarshal(payload, &seed); err != nil {
				return 0, 0, fmt.Errorf("client: failed to decode hash seed: %w", err)
			}
			return seed.K0, seed.K1, nil
		case wire.EventMessageAborted:
			return 0, 0, fmt.Errorf("client: connection aborted before hash seed arrived")
		}
	}
}
