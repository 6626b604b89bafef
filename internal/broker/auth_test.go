package broker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skytfs/streammesh/internal/message"
	"github.com/skytfs/streammesh/internal/wire"
	"github.com/skytfs/streammesh/pkg/config"
)

func writeAuth(t *testing.T, tx, key, accessKey string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := wire.NewWriter(&buf, 1, 0, wire.TagRpcRequest)
	meta := &message.Meta{Tx: tx, Rx: "Server", Key: key, Kind: message.KindRpcRequest}
	payload := []byte(`{"access_key":"` + accessKey + `"}`)
	require.NoError(t, w.WriteWhole(meta, payload))
	return &buf
}

func TestAuthStreamAcceptsAllowedKey(t *testing.T) {
	buf := writeAuth(t, "alice", "Auth", "secret")
	addr, err := authStream(buf, config.AccessPolicy{Keys: []string{"secret"}})
	require.NoError(t, err)
	require.Equal(t, "alice", addr)
}

func TestAuthStreamAllowsAnyKeyWhenPolicyEmpty(t *testing.T) {
	buf := writeAuth(t, "alice", "Auth", "whatever")
	addr, err := authStream(buf, config.AccessPolicy{})
	require.NoError(t, err)
	require.Equal(t, "alice", addr)
}

func TestAuthStreamRejectsBadKey(t *testing.T) {
	buf := writeAuth(t, "alice", "Auth", "wrong")
	_, err := authStream(buf, config.AccessPolicy{Keys: []string{"secret"}})
	require.Error(t, err)
}

func TestAuthStreamRejectsWrongMessageKey(t *testing.T) {
	buf := writeAuth(t, "alice", "NotAuth", "secret")
	_, err := authStream(buf, config.AccessPolicy{Keys: []string{"secret"}})
	require.Error(t, err)
}

func TestAuthStreamRejectsMissingTx(t *testing.T) {
	buf := writeAuth(t, "", "Auth", "secret")
	_, err := authStream(buf, config.AccessPolicy{})
	require.Error(t, err)
}
