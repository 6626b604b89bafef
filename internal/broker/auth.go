package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
	"github.com/skytfs/streammesh/pkg/config"
)

type authPayload struct {
	AccessKey string `json:"access_key"`
}

type seedPayload struct {
	K0 uint64 `json:"k0"`
	K1 uint64 `json:"k1"`
}

// authStream reads one full message from conn using the read state
// machine and validates it as an Auth RPC request: key "Auth", an
// access_key payload accepted by policy. It returns the address the
// connection authenticated as (Meta.Tx), mirroring the original source's
// auth_stream, which derives the participant's address purely from the
// authenticated message rather than from any prior handshake step.
func authStream(conn io.Reader, policy config.AccessPolicy) (string, error) {
	state := wire.NewState("broker-auth")
	var payload []byte
	var tx, key string

	for {
		result, err := state.Read(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return "", ErrAuthStreamEmpty
			}
			return "", err
		}
		switch result.Type {
		case wire.EventMsgMeta:
			tx = result.Meta.Tx
			key = result.Meta.Key
		case wire.EventPayloadData, wire.EventPayloadFinished:
			payload = append(payload, result.Buf...)
		case wire.EventMessageFinished:
			if result.Finish == wire.FinishPayload {
				payload = append(payload, result.Buf...)
			}
			return finishAuth(tx, key, payload, policy)
		case wire.EventMessageAborted:
			return "", ErrAuthStreamEmpty
		}
	}
}

func finishAuth(tx, key string, payload []byte, policy config.AccessPolicy) (string, error) {
	if key != "Auth" {
		return "", fmt.Errorf("broker: expected Auth message, got key %q", key)
	}
	var auth authPayload
	if err := json.Unmarshal(payload, &auth); err != nil {
		return "", fmt.Errorf("broker: failed to decode Auth payload: %w", err)
	}
	if !policy.Allows(auth.AccessKey) {
		return "", fmt.Errorf("broker: access key rejected for %q", tx)
	}
	if tx == "" {
		return "", fmt.Errorf("broker: Auth message missing tx address")
	}
	return tx, nil
}

// sendHashSeed replies to an authorized read-direction connection with the
// broker's routing-key hash seed, carried as the payload of an RpcResponse
// to Auth. A sender's key hash and the broker's subscription map must agree
// bit-for-bit on the same key, so every participant learns the seed here
// rather than generating its own (spec.md §3, §4.1, §9).
func sendHashSeed(conn io.Writer, addr string, hasher *message.KeyHasher) error {
	k0, k1 := hasher.Seed()
	payload, err := json.Marshal(seedPayload{K0: k0, K1: k1})
	if err != nil {
		return err
	}
	meta := &message.Meta{
		Tx:   "Server",
		Rx:   addr,
		Key:  "Auth",
		Kind: message.KindRpcResponseOk,
	}
	w := wire.NewWriter(conn, 0, 0, wire.TagRpcResponseOk)
	return w.WriteWhole(meta, payload)
}
