package config

import (
	"sync"

	"github.com/spf13/pflag"
)

// Store hands out the current Config and lets Reload swap it for a newly
// validated one atomically — readers never observe a half-applied reload.
type Store struct {
	mu   sync.RWMutex
	path string
	cur  *Config
}

// NewStore wraps an already-resolved Config. path is remembered so Reload
// can re-read the same file.
func NewStore(path string, initial *Config) *Store {
	return &Store{path: path, cur: initial}
}

// Get returns the current Config. The caller must not mutate it; Reload
// never mutates a Config in place, it only ever replaces the pointer.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Reload re-resolves the config from file and flags, validates the
// result, and only then swaps it in. A failed reload leaves the previous
// Config in effect.
func (s *Store) Reload(flags *pflag.FlagSet) (*Config, error) {
	next, err := New(s.path, flags)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return next, nil
}
