package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"svcguard/registry"
)

const (
	defaultReplicas = 100
	maxCachedRings  = 64
)

// ConsistentHashBalancer maps a key to an instance using a hash ring, so the
// same key keeps landing on the same instance while the healthy set is stable.
// Each instance owns `replicas` virtual nodes hashed from "{key}#{i}".
//
// The ring is derived from the candidate list of each call. Rings are cached
// by the candidates' instance keys; a health flap produces a new ring and only
// the keys owned by the changed instance move.
type ConsistentHashBalancer struct {
	replicas int
	mu       sync.Mutex
	rings    map[string]*hashRing // candidate signature → ring
}

type hashRing struct {
	hashes []uint32       // Sorted virtual node hashes
	owners map[uint32]int // Virtual node hash → candidate index
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: defaultReplicas,
		rings:    make(map[string]*hashRing),
	}
}

// Pick finds the instance responsible for key: the first virtual node
// clockwise from hash(key), wrapping to the start of the ring.
func (b *ConsistentHashBalancer) Pick(candidates []registry.ServiceConfig, key string) (registry.ServiceConfig, bool) {
	if len(candidates) == 0 {
		return registry.ServiceConfig{}, false
	}

	ring := b.ring(candidates)
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(ring.hashes), func(i int) bool {
		return ring.hashes[i] >= hash
	})
	if idx == len(ring.hashes) {
		idx = 0
	}
	return candidates[ring.owners[ring.hashes[idx]]], true
}

func (b *ConsistentHashBalancer) Name() string {
	return ConsistentHash.String()
}

func (b *ConsistentHashBalancer) ring(candidates []registry.ServiceConfig) *hashRing {
	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = c.Key()
	}
	signature := strings.Join(keys, ",")

	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.rings[signature]; ok {
		return r
	}

	r := &hashRing{
		hashes: make([]uint32, 0, len(candidates)*b.replicas),
		owners: make(map[uint32]int, len(candidates)*b.replicas),
	}
	for i, key := range keys {
		for v := 0; v < b.replicas; v++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", key, v)))
			if _, taken := r.owners[h]; taken {
				continue
			}
			r.hashes = append(r.hashes, h)
			r.owners[h] = i
		}
	}
	sort.Slice(r.hashes, func(i, j int) bool { return r.hashes[i] < r.hashes[j] })

	// Health flaps can mint many signatures over a process lifetime.
	if len(b.rings) >= maxCachedRings {
		clear(b.rings)
	}
	b.rings[signature] = r
	return r
}
