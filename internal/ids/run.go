package ids

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRunPrefix is prepended to run ids when the caller supplies none.
const DefaultRunPrefix = "run-"

// runTimeLayout keeps nanosecond resolution and sorts lexically.
const runTimeLayout = "20060102T150405.000000000Z"

// RunIDGenerator produces run ids.
// Implemented by ClockGenerator (default), UUIDv7Generator and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate(prefix string) string
}

// ClockGenerator derives run ids from a high-resolution UTC clock reading.
//
// Ids are practically unique across sequential runs on one machine. They are
// not collision-proof under adversarial conditions.
type ClockGenerator struct {
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// Generate returns prefix + UTC timestamp with nanoseconds.
//
// Format: "run-20250115T093000.123456789Z"
func (g ClockGenerator) Generate(prefix string) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return prefix + now().UTC().Format(runTimeLayout)
}

// NowRunID returns prefix + the current high-resolution clock reading.
func NowRunID(prefix string) string {
	return ClockGenerator{}.Generate(prefix)
}

// UUIDv7Generator derives run ids from a UUIDv7.
//
// UUIDv7 embeds a millisecond timestamp in its most significant bits, so ids
// still sort by creation time, and the random tail makes concurrent runs on
// different machines safe.
type UUIDv7Generator struct{}

// Generate returns prefix + hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate(prefix string) string {
	return prefix + uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined run ids for testing.
//
// The prefix passed to Generate is ignored; tokens are returned verbatim.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate(string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all run ids exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
