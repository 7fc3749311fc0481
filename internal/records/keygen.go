package records

import (
	"math/rand"
	"strconv"
	"sync"
	"time"
)

const keySuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// KeyGenerator mints record keys: a high-resolution timestamp concatenated
// with a small random suffix. Keys are monotonic-ish, not cryptographically
// unique; the collision risk is only theoretical under very high write rates.
// The clock and the random source are injected so key generation is testable
// and free of hidden global state.
type KeyGenerator struct {
	mu  sync.Mutex
	now func() time.Time
	rnd *rand.Rand
}

// NewKeyGenerator creates a generator seeded from the current time.
func NewKeyGenerator() *KeyGenerator {
	return NewKeyGeneratorWith(time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewKeyGeneratorWith creates a generator with an explicit clock and random
// source.
func NewKeyGeneratorWith(now func() time.Time, rnd *rand.Rand) *KeyGenerator {
	return &KeyGenerator{now: now, rnd: rnd}
}

// Next returns a fresh record key.
func (g *KeyGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := strconv.FormatInt(g.now().UTC().UnixNano(), 36)
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = keySuffixAlphabet[g.rnd.Intn(len(keySuffixAlphabet))]
	}
	return ts + string(suffix)
}
