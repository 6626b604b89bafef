package client

import (
	"github.com/google/uuid"

	"github.com/skytfs/streammesh/internal/message"
)

// CallResult is the payload and attachments delivered as an RPC response.
type CallResult struct {
	Meta        *message.Meta
	Payload     []byte
	Attachments [][]byte
	Failed      bool
}

type call struct {
	reply chan CallResult
}

type addCmd struct {
	id   uuid.UUID
	call *call
}

type deliverCmd struct {
	id     uuid.UUID
	result CallResult
}

type cancelCmd struct {
	id      uuid.UUID
	removed chan bool
}

// rpcTable is the single-owner correlation-id table backing every
// in-flight RPC call: IDLE (never registered) -> WAITING (registered,
// caller blocked in select) -> DELIVERED (a response arrived first) or
// ABORTED (the caller's context fired first and won the race to cancel).
// Ownership is serialized through one goroutine, the same pattern as
// internal/broker's Registry, so no pending call can be both delivered
// and cancelled.
type rpcTable struct {
	cmds chan interface{}
}

func newRPCTable() *rpcTable {
	t := &rpcTable{cmds: make(chan interface{}, 256)}
	go t.run()
	return t
}

func (t *rpcTable) run() {
	pending := make(map[uuid.UUID]*call)
	for raw := range t.cmds {
		switch cmd := raw.(type) {
		case addCmd:
			pending[cmd.id] = cmd.call
		case deliverCmd:
			if c, ok := pending[cmd.id]; ok {
				delete(pending, cmd.id)
				c.reply <- cmd.result
			}
		case cancelCmd:
			_, ok := pending[cmd.id]
			delete(pending, cmd.id)
			cmd.removed <- ok
		}
	}
}

// register moves a call from IDLE to WAITING, returning the channel its
// eventual result (or cancellation) arrives on.
func (t *rpcTable) register(id uuid.UUID) <-chan CallResult {
	reply := make(chan CallResult, 1)
	t.cmds <- addCmd{id: id, call: &call{reply: reply}}
	return reply
}

// deliver moves a call from WAITING to DELIVERED. A response for an
// unknown or already-resolved id is silently dropped — it arrived too
// late to matter.
func (t *rpcTable) deliver(id uuid.UUID, result CallResult) {
	t.cmds <- deliverCmd{id: id, result: result}
}

// cancel attempts to move a call from WAITING to ABORTED. It returns
// false if the call had already been delivered, in which case the
// caller's reply channel is guaranteed to hold the result already.
func (t *rpcTable) cancel(id uuid.UUID) bool {
	removed := make(chan bool, 1)
	t.cmds <- cancelCmd{id: id, removed: removed}
	return <-removed
}
