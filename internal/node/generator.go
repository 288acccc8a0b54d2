package node

import (
	"fmt"
	"math/rand"
	"time"
)

// Generator produces the text for broadcast chat messages. Pluggable
// so tests can substitute a deterministic source.
type Generator interface {
	Generate() string
}

// RandomGenerator produces "Random message N" payloads. Not safe for
// concurrent use; only the broadcast scheduler calls it.
type RandomGenerator struct {
	rng *rand.Rand
}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *RandomGenerator) Generate() string {
	return fmt.Sprintf("Random message %d", g.rng.Intn(10000))
}
