package memstore

import (
	"sync"

	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/rs/zerolog/log"
)

var _ credentials.Store = (*Store)(nil)

// Store keeps the credential entries in memory.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func New() *Store {
	return &Store{entries: make(map[string][]byte)}
}

func (s *Store) Save(record credentials.SessionRecord) error {
	entries, err := credentials.Encode(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	return nil
}

func (s *Store) Load() (*credentials.SessionRecord, bool) {
	s.mu.RLock()
	entries := make(map[string][]byte, len(s.entries))
	for k, v := range s.entries {
		entries[k] = append([]byte(nil), v...)
	}
	s.mu.RUnlock()

	if len(entries) == 0 {
		return nil, false
	}
	record, err := credentials.Decode(entries)
	if err != nil {
		log.Warn().Err(err).Msg("discarding unreadable session record")
		return nil, false
	}
	return record, true
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]byte)
	return nil
}

// Put overwrites a single raw entry. Tests use it to simulate a torn write.
func (s *Store) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = append([]byte(nil), data...)
}

// Len reports how many entries are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
