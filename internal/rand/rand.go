// Package rand provides a deterministic pseudo-random source seeded from
// the invocation id, so that user code calling it observes the same
// sequence on every replay without recording a journal entry.
package rand

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"
)

// Rand is obtained once per invocation via Context.Rand() and is safe to
// call repeatedly from within a handler; it never blocks and never touches
// the journal.
type Rand struct {
	source *Source
}

func New(invocationID []byte) *Rand {
	return &Rand{newSource(invocationID)}
}

func (r *Rand) UUID() uuid.UUID {
	var id [16]byte
	binary.LittleEndian.PutUint64(id[:8], r.Uint64())
	binary.LittleEndian.PutUint64(id[8:], r.Uint64())
	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // variant 10
	return id
}

func (r *Rand) Float64() float64 {
	// mirrors math/rand/v2's Float64 derivation so the sequence matches
	// what handlers would see from the stdlib generator.
	return float64(r.Uint64()<<11>>11) / (1 << 53)
}

func (r *Rand) Uint64() uint64 {
	return r.source.Uint64()
}

// Source exposes the underlying generator so it can be handed to
// math/rand.New or math/rand/v2.New by callers that want stdlib
// distributions (e.g. Intn) on top of deterministic output.
func (r *Rand) Source() *Source {
	return r.source
}

// Source is a xoshiro256++ generator seeded from a SHA-256 of the
// invocation id.
type Source struct {
	state [4]uint64
}

func newSource(invocationID []byte) *Source {
	sum := sha256.Sum256(invocationID)
	return &Source{state: [4]uint64{
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
		binary.LittleEndian.Uint64(sum[16:24]),
		binary.LittleEndian.Uint64(sum[24:32]),
	}}
}

func (s *Source) Int63() int64 {
	return int64(s.Uint64() & ((1 << 63) - 1))
}

// Seed panics: this source's state is derived entirely from the invocation
// id and reseeding it would break determinism across replays.
func (s *Source) Seed(int64) {
	panic("durable/rand: invocation-scoped source must not be reseeded")
}

func (s *Source) Uint64() uint64 {
	result := rotl(s.state[0]+s.state[3], 23) + s.state[0]
	t := s.state[1] << 17

	s.state[2] ^= s.state[0]
	s.state[3] ^= s.state[1]
	s.state[1] ^= s.state[2]
	s.state[0] ^= s.state[3]
	s.state[2] ^= t
	s.state[3] = rotl(s.state[3], 45)

	return result
}

func rotl(x, k uint64) uint64 {
	return (x << k) | (x >> (64 - k))
}
