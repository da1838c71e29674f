package checker

import (
	"math/rand"
	"sync"
)

// IDSource hands out ICMP echo identifier/sequence pairs. It is safe for
// concurrent use. Identifiers are random; sequence numbers advance from a
// random base, so no pair repeats within 65536 consecutive calls.
type IDSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	seq uint16
}

// NewIDSource creates an IDSource seeded with seed
func NewIDSource(seed int64) *IDSource {
	rng := rand.New(rand.NewSource(seed))
	return &IDSource{
		rng: rng,
		seq: uint16(rng.Intn(1 << 16)),
	}
}

// Next returns a fresh identifier and sequence number, both in [0, 65535]
func (s *IDSource) Next() (id, seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return s.rng.Intn(1 << 16), int(s.seq)
}
