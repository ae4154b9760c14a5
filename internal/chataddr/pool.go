// Package chataddr hands out multicast group addresses for per-document chat channels.
//
// Addresses are drawn uniformly at random from a multicast prefix and retried on
// collision with the set of addresses in use. The prefix is large (224.0.0.0/4 holds
// 2^28 addresses) compared to the number of documents that have open edit locks at
// the same time, so collisions are rare and the sampler stays cheap.
package chataddr

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"sync"
)

// DefaultNetwork is the IPv4 multicast range.
var DefaultNetwork = netip.MustParsePrefix("224.0.0.0/4")

// Pool tracks the chat addresses currently in use. It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	network netip.Prefix
	base    uint32
	size    uint64
	used    map[netip.Addr]struct{}
	rng     *rand.Rand
}

// Option configures a Pool.
type Option func(*Pool)

// WithRand replaces the random source, mostly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(p *Pool) {
		p.rng = r
	}
}

// NewPool creates a pool drawing from network, which must be an IPv4 multicast prefix.
func NewPool(network netip.Prefix, opts ...Option) (*Pool, error) {
	network = network.Masked()
	if !network.Addr().Is4() || !network.Addr().IsMulticast() {
		return nil, fmt.Errorf("chat network %s is not an IPv4 multicast prefix", network)
	}
	if network.Bits() < 4 {
		return nil, fmt.Errorf("chat network %s is wider than the multicast range", network)
	}

	b := network.Addr().As4()
	p := &Pool{
		network: network,
		base:    uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		size:    uint64(1) << (32 - network.Bits()),
		used:    make(map[netip.Addr]struct{}),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Acquire reserves an unused address. ok is false when every address is in use.
func (p *Pool) Acquire() (addr netip.Addr, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if uint64(len(p.used)) >= p.size {
		return netip.Addr{}, false
	}
	for {
		candidate := p.addrAt(p.rng.Uint64N(p.size))
		if _, taken := p.used[candidate]; taken {
			continue
		}
		p.used[candidate] = struct{}{}
		return candidate, true
	}
}

// Release returns addr to the pool. Releasing an address that is not in use is a no-op.
func (p *Pool) Release(addr netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.used, addr)
}

// InUse reports how many addresses are reserved.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used)
}

// Capacity is the size of the address space.
func (p *Pool) Capacity() uint64 {
	return p.size
}

// Network returns the prefix addresses are drawn from.
func (p *Pool) Network() netip.Prefix {
	return p.network
}

func (p *Pool) addrAt(offset uint64) netip.Addr {
	v := p.base + uint32(offset)
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
