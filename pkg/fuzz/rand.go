// Package fuzz implements a deterministic, seeded, weighted-random fuzz
// engine for the drive contract in [github.com/calvinalkan/drivefuzz/pkg/drive].
//
// The engine draws operations from a closed weighted table, executes them
// against a drive, mirrors the expected outcome into an independent shadow
// [State], and reconciles the two with a validation sweep ([Validate]).
// A replication [Harness] can redirect all validation reads to a replica
// peer that was bootstrapped purely from the wire protocol.
//
// Everything is a pure function of the seed string: two runs with the same
// seed and iteration count draw identical values, generate identical
// operation sequences, and therefore fail identically. The seed is the
// reproduction mechanism; there are no retries anywhere.
package fuzz

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
)

// Rand is a deterministic bounded-integer source derived from a string
// seed. The seed is hashed into the two PCG state words, so any two runs
// with the same seed draw identical sequences across platforms.
type Rand struct {
	rng *rand.Rand
}

// NewRand derives a generator from seed.
func NewRand(seed string) *Rand {
	sum := sha256.Sum256([]byte(seed))

	return &Rand{rng: rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))}
}

// Int draws a uniform integer in [0, max], inclusive on both ends.
//
// An empty domain (max < 0) reports ok=false without consuming a draw;
// callers treat that as "no candidate" and turn the operation into a no-op.
func (r *Rand) Int(max int) (int, bool) {
	if max < 0 {
		return 0, false
	}

	return int(r.rng.Uint64N(uint64(max) + 1)), true
}
