// Package location holds the host's shared "current URL", the value the
// address bar shows regardless of which frame navigated last.
package location

import (
	"strings"
	"sync"
)

// Normalize turns user input into something a frame can load. Input without
// an http or https scheme gets https:// prepended; empty input stays empty.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + strings.TrimPrefix(s, "//")
}

// Listener is called with the new URL after every change.
type Listener func(url string)

// Store is safe for concurrent use. Listeners run synchronously on the
// goroutine that called Set, outside the lock.
type Store struct {
	mu        sync.RWMutex
	current   string
	nextID    int
	listeners map[int]Listener
}

// NewStore returns a Store holding initial.
func NewStore(initial string) *Store {
	return &Store{current: initial, listeners: make(map[int]Listener)}
}

// Current returns the stored URL.
func (s *Store) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the URL and notifies listeners. It returns false, and
// notifies nobody, when url equals the current value.
func (s *Store) Set(url string) bool {
	s.mu.Lock()
	if url == s.current {
		s.mu.Unlock()
		return false
	}
	s.current = url
	snapshot := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			snapshot = append(snapshot, l)
		}
	}
	s.mu.Unlock()

	for _, l := range snapshot {
		l(url)
	}
	return true
}

// Subscribe registers l. The returned function removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
