package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// Rand is the randomness source used for draws and default turn counts.
type Rand interface {
	// IntN returns a uniform integer in [0, n). n is always positive.
	IntN(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewRand returns a goroutine-safe source seeded from crypto/rand.
func NewRand() Rand {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("game: failed to seed random source: " + err.Error())
	}
	return NewSeededRand(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}

// NewSeededRand returns a deterministic goroutine-safe source.
func NewSeededRand(seed1, seed2 uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed1, seed2))}
}
