package session

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
)

// Rand is the randomness source used for question shuffling. Injected so the
// per-session-stable shuffle property is testable deterministically.
type Rand interface {
	Intn(n int) int
}

// shuffle applies an unbiased Fisher–Yates permutation in place.
func shuffle(ids []string, r Rand) {
	for i := len(ids) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// cryptoSeededRand builds the default math/rand source seeded from
// crypto/rand, so independently created sessions get independent orders.
func cryptoSeededRand() Rand {
	var seed int64
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return rand.New(rand.NewSource(seed))
}
