package testutil

import (
	"fmt"
	"sync"
)

// IDGenerator produces sequential, prefix-stable IDs ("id-1", "id-2", ...)
// so tests can assert on generated identifiers.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewIDGenerator creates a generator with the given prefix.
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns the next ID.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence. After Reset the next ID is "<prefix>-1".
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
