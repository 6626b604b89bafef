package broker

import (
	"net"

	"github.com/skytfs/streammesh/internal/wire"
	"github.com/skytfs/streammesh/pkg/logger"
)

// registryClient is what the registry goroutine knows about one addressed
// participant: where its write-direction connection's net address is (for
// diagnostics) and the channel its per-connection write pump drains.
type registryClient struct {
	netAddr net.Addr
	send    chan<- *wire.Frame
}

// serverMsg is the registry's command type — the Go equivalent of the
// original source's ServerMsg enum (AddClient/Send/RemoveClient), modeled
// here as an interface with three concrete implementations rather than a
// tagged enum since each command carries a different payload shape.
type serverMsg interface {
	apply(clients map[string]*registryClient)
}

type addClientMsg struct {
	addr    string
	netAddr net.Addr
	send    chan<- *wire.Frame
}

func (m addClientMsg) apply(clients map[string]*registryClient) {
	clients[m.addr] = &registryClient{netAddr: m.netAddr, send: m.send}
}

type sendMsg struct {
	addr  string
	frame *wire.Frame
	log   *logger.Logger
}

func (m sendMsg) apply(clients map[string]*registryClient) {
	client, ok := clients[m.addr]
	if !ok {
		if m.log != nil {
			m.log.Warn("no client for send, addr=%s", m.addr)
		}
		return
	}
	select {
	case client.send <- m.frame:
	default:
		if m.log != nil {
			m.log.Error("write channel full, dropping frame for addr=%s", m.addr)
		}
	}
}

type removeClientMsg struct {
	addr string
}

func (m removeClientMsg) apply(clients map[string]*registryClient) {
	delete(clients, m.addr)
}

// Registry is the single-owner client directory: every addressed
// participant's outbound frame channel lives here, and all access is
// serialized through a single command queue so no mutex is needed
// (spec.md §5, grounded on the original source's ServerMsg actor and the
// teacher's channel-owned-map connection registries). The queue is
// unbounded by design (spec.md §5): a command sender must never block on
// the registry, only a registry client's own per-connection channel
// (drained by its write pump) may apply backpressure, and that channel
// already drops rather than blocks (see sendMsg.apply).
type Registry struct {
	in  chan serverMsg
	out chan serverMsg
	log *logger.Logger
}

// NewRegistry starts the registry's owning goroutines and returns a handle
// to it. The goroutines run until Close is called.
func NewRegistry(log *logger.Logger) *Registry {
	r := &Registry{in: make(chan serverMsg), out: make(chan serverMsg), log: log}
	go r.buffer()
	go r.run()
	return r
}

// buffer decouples senders from the single registry goroutine with a
// growable in-memory queue, so In never blocks no matter how far behind
// run() falls — the standard unbounded-channel idiom, since Go's native
// channels only offer fixed-capacity buffering.
func (r *Registry) buffer() {
	var queue []serverMsg
	for {
		if len(queue) == 0 {
			msg, ok := <-r.in
			if !ok {
				close(r.out)
				return
			}
			queue = append(queue, msg)
			continue
		}
		select {
		case msg, ok := <-r.in:
			if !ok {
				for _, m := range queue {
					r.out <- m
				}
				close(r.out)
				return
			}
			queue = append(queue, msg)
		case r.out <- queue[0]:
			queue = queue[1:]
		}
	}
}

func (r *Registry) run() {
	clients := make(map[string]*registryClient)
	for msg := range r.out {
		msg.apply(clients)
	}
}

// Close stops the registry's goroutines. No further commands may be sent
// afterwards.
func (r *Registry) Close() {
	close(r.in)
}

// AddClient registers addr's outbound frame channel, replacing any prior
// registration for the same address.
func (r *Registry) AddClient(addr string, netAddr net.Addr, send chan<- *wire.Frame) {
	r.in <- addClientMsg{addr: addr, netAddr: netAddr, send: send}
}

// Send enqueues frame for delivery to addr's write pump. Delivery to the
// write pump's own channel is best-effort: a full channel drops the frame
// rather than blocking the registry (a slow subscriber must not stall
// routing for everyone else).
func (r *Registry) Send(addr string, frame *wire.Frame) {
	r.in <- sendMsg{addr: addr, frame: frame, log: r.log}
}

// RemoveClient drops addr's registration, e.g. after its write pump's
// connection fails.
func (r *Registry) RemoveClient(addr string) {
	r.in <- removeClientMsg{addr: addr}
}
