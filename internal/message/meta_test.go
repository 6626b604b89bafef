package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetaEncodeDecodeRoundTrip(t *testing.T) {
	id := NewCorrelationID()
	m := &Meta{
		Tx:            "alice",
		Rx:            "bob",
		Key:           "Ping",
		Kind:          KindRpcRequest,
		CorrelationID: &id,
		Route: Route{
			Source: Participator{Service: "alice"},
			Points: []Participator{{Service: "alice"}},
		},
		Attachments: []AttachmentMeta{{Name: "f.txt", Size: 10}},
		PayloadSize: 4,
	}

	body, err := m.Encode()
	require.NoError(t, err)

	got, err := Decode(body)
	require.NoError(t, err)
	require.Equal(t, m.Tx, got.Tx)
	require.Equal(t, m.Rx, got.Rx)
	require.Equal(t, m.Key, got.Key)
	require.Equal(t, m.Kind, got.Kind)
	require.NotNil(t, got.CorrelationID)
	require.Equal(t, *m.CorrelationID, *got.CorrelationID)
	require.Equal(t, m.Route, got.Route)
	require.Equal(t, m.Attachments, got.Attachments)
	require.Equal(t, m.PayloadSize, got.PayloadSize)
}

func TestKindIsRpcResponse(t *testing.T) {
	require.True(t, KindRpcResponseOk.IsRpcResponse())
	require.True(t, KindRpcResponseErr.IsRpcResponse())
	require.False(t, KindEvent.IsRpcResponse())
	require.False(t, KindRpcRequest.IsRpcResponse())
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	require.NotEqual(t, a, b)
}
