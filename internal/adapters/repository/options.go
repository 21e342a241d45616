package repository

import (
	"math/rand/v2"
	"time"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithPrioritySeed makes treap priorities deterministic.
func WithPrioritySeed(seed uint64) Option {
	return func(s *MemoryStore) {
		s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock overrides the time source used for ranking timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
