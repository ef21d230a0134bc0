package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator yields deterministic identifiers. Plain generators produce
// "<kind>-<n>"; UUID generators produce name-based UUIDs derived from the same
// string, so ids are shaped like production ones and still repeat across runs.
type IDGenerator struct {
	mu      sync.Mutex
	kind    string
	counter uint64
	uuids   bool
}

// NewIDGenerator returns a sequential generator. An empty kind becomes "id".
func NewIDGenerator(kind string) *IDGenerator {
	if kind == "" {
		kind = "id"
	}
	return &IDGenerator{kind: kind}
}

// NewUUIDGenerator returns a generator of deterministic UUID strings.
func NewUUIDGenerator(kind string) *IDGenerator {
	g := NewIDGenerator(kind)
	g.uuids = true
	return g
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	name := fmt.Sprintf("%s-%d", g.kind, g.counter)
	if g.uuids {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
	}
	return name
}

// NextFunc adapts the generator to the func() string the services take.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return uuid.NewString
	}
	return g.Next
}

// Reset restarts the sequence so a second store sees the same ids.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
