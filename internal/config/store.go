package config

import "sync/atomic"

// Store publishes the current configuration snapshot. Readers never observe a
// partially updated Config.
type Store struct {
	current atomic.Pointer[Config]
	version atomic.Uint64
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Swap replaces the active snapshot and returns the previous one.
func (s *Store) Swap(cfg *Config) *Config {
	if cfg == nil {
		return s.current.Load()
	}
	s.version.Add(1)
	return s.current.Swap(cfg)
}

// Version counts successful swaps.
func (s *Store) Version() uint64 {
	return s.version.Load()
}
