package message

import "fmt"

// ByAddrEntry lists, for one publishing participant, which keys it
// publishes as events and as RPC requests, and who subscribes to each.
// This mirrors the TOML shape described in spec.md §6 ("subscribes" keyed
// by participant address).
type ByAddrEntry struct {
	Address        string              `toml:"address"`
	PublishesEvent []string            `toml:"publishes_event"`
	PublishesRpc   []string            `toml:"publishes_rpc"`
	EventSubs      map[string][]string `toml:"event_subscribers"`
	RpcSubs        map[string][]string `toml:"rpc_subscribers"`
	RpcResponseSub map[string][]string `toml:"rpc_response_subscribers"`
}

// ByKeyForm is the already-resolved form: key -> subscriber addresses, one
// map per message kind class.
type ByKeyForm struct {
	Event       map[string][]string `toml:"event"`
	Rpc         map[string][]string `toml:"rpc"`
	RpcResponse map[string][]string `toml:"rpc_response"`
}

// Subscribes is the broker's subscription configuration, in either the
// by-participant-address or the already-resolved by-key form (spec.md §6).
type Subscribes struct {
	ByAddr []ByAddrEntry `toml:"by_addr"`
	ByKey  *ByKeyForm    `toml:"by_key"`
}

// Map is the resolved, immutable subscription index: (kind class, key
// hash) -> ordered list of subscriber addresses. Built once at broker
// startup and never mutated afterwards, so it is safe to share across
// routing goroutines without locking (spec.md §3, §5).
type Map struct {
	Event       map[uint64][]string
	Rpc         map[uint64][]string
	RpcResponse map[uint64][]string
}

// Lookup returns the subscriber list for a (kind, key hash) pair.
func (m *Map) Lookup(kind Kind, keyHash uint64) ([]string, bool) {
	var table map[uint64][]string
	switch {
	case kind == KindEvent:
		table = m.Event
	case kind == KindRpcRequest:
		table = m.Rpc
	case kind.IsRpcResponse():
		table = m.RpcResponse
	default:
		return nil, false
	}
	targets, ok := table[keyHash]
	return targets, ok
}

// Resolve builds an immutable Map from a Subscribes configuration. The
// by-address form is resolved from the abstract model in spec.md §3 rather
// than extrapolated from the original source's incomplete
// to_hashed_subscribes/Subscribes::ByAddr helper (spec.md §9, Open
// Question): for each publisher, every key it declares is attributed to
// that publisher's listed subscribers.
func Resolve(s Subscribes, hasher *KeyHasher) (*Map, error) {
	event := map[string][]string{}
	rpc := map[string][]string{}
	rpcResponse := map[string][]string{}

	if s.ByKey != nil {
		mergeKeyed(event, s.ByKey.Event)
		mergeKeyed(rpc, s.ByKey.Rpc)
		mergeKeyed(rpcResponse, s.ByKey.RpcResponse)
	}

	for _, entry := range s.ByAddr {
		if entry.Address == "" {
			return nil, fmt.Errorf("message: by-addr subscribe entry missing address")
		}
		for _, key := range entry.PublishesEvent {
			event[key] = append(event[key], entry.EventSubs[key]...)
		}
		for _, key := range entry.PublishesRpc {
			rpc[key] = append(rpc[key], entry.RpcSubs[key]...)
			rpcResponse[key] = append(rpcResponse[key], entry.RpcResponseSub[key]...)
		}
	}

	return &Map{
		Event:       hashTable(event, hasher),
		Rpc:         hashTable(rpc, hasher),
		RpcResponse: hashTable(rpcResponse, hasher),
	}, nil
}

func mergeKeyed(dst map[string][]string, src map[string][]string) {
	for key, subs := range src {
		dst[key] = append(dst[key], subs...)
	}
}

func hashTable(byKey map[string][]string, hasher *KeyHasher) map[uint64][]string {
	out := make(map[uint64][]string, len(byKey))
	for key, subs := range byKey {
		out[hasher.Hash(key)] = dedupe(subs)
	}
	return out
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
