package client

import "sync/atomic"

// MagicBall is the thin facade handed to stream-mode consumers: an
// identity (Addr) and a stream id generator. The name and role follow
// the original source's MagicBall directly (spec.md §9's guidance to
// keep established naming when no clearer Go idiom replaces it).
type MagicBall struct {
	addr    string
	salt    uint64
	counter uint64
}

// newMagicBall builds a MagicBall for addr. salt is mixed into every
// generated stream id so that two client processes reusing the same
// address after a reconnect don't hand out colliding stream ids while a
// peer might still hold residual per-stream state from the prior
// connection incarnation.
func newMagicBall(addr string, salt uint64) *MagicBall {
	return &MagicBall{addr: addr, salt: salt}
}

// Addr returns the participant address this MagicBall was built for.
func (mb *MagicBall) Addr() string {
	return mb.addr
}

// GetStreamID returns a fresh, monotonically increasing, salted stream
// id: the high 32 bits are the low 32 bits of the salt and the low 32 bits
// are a per-MagicBall counter, so ids increase until the counter wraps.
// Safe for concurrent use.
func (mb *MagicBall) GetStreamID() uint64 {
	n := atomic.AddUint64(&mb.counter, 1)
	return mb.salt<<32 | n&0xffffffff
}
