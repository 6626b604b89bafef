package client

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRPCTableDeliverWakesWaitingCaller(t *testing.T) {
	table := newRPCTable()
	id := uuid.New()
	reply := table.register(id)

	table.deliver(id, CallResult{Payload: []byte("ok")})

	select {
	case result := <-reply:
		require.Equal(t, []byte("ok"), result.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestRPCTableCancelBeforeDeliveryReturnsTrue(t *testing.T) {
	table := newRPCTable()
	id := uuid.New()
	table.register(id)

	require.True(t, table.cancel(id))

	// A late delivery for a cancelled id must be silently dropped, not panic.
	table.deliver(id, CallResult{Payload: []byte("too late")})
}

func TestRPCTableCancelAfterDeliveryReturnsFalse(t *testing.T) {
	table := newRPCTable()
	id := uuid.New()
	reply := table.register(id)
	table.deliver(id, CallResult{Payload: []byte("ok")})

	// Give the delivery a chance to land in the table before racing cancel.
	<-reply

	require.False(t, table.cancel(id))
}

func TestRPCTableUnknownIDCancelReturnsFalse(t *testing.T) {
	table := newRPCTable()
	require.False(t, table.cancel(uuid.New()))
}
