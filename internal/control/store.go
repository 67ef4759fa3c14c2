// Package control owns the filter state shared by every processed stream and
// exposes it to the preview window and to remote clients.
package control

import (
	"sort"
	"sync"

	"camera-effects/internal/effects"
)

// Listener receives the state after a change together with the state it replaced
type Listener func(current, previous effects.State)

// Store is the single writer-side owner of the filter state. Readers take a
// copy once per frame through State.
//
// Changes are committed and delivered one at a time, so every listener sees
// them in commit order and the last notification always matches the stored
// state. Listeners may read the store but must not write to it.
type Store struct {
	// held from commit until every listener returned
	notifyMu sync.Mutex

	mu        sync.RWMutex
	state     effects.State
	nextID    int
	listeners map[int]Listener
}

func NewStore(initial effects.State) *Store {
	return &Store{
		state:     initial.Normalize(),
		listeners: make(map[int]Listener),
	}
}

func (s *Store) State() effects.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the whole state. Parameters are clamped into range.
func (s *Store) Set(st effects.State) {
	s.Modify(func(cur *effects.State) error {
		*cur = st
		return nil
	})
}

// Update applies fn to a copy of the current state and stores the result
func (s *Store) Update(fn func(*effects.State)) {
	s.Modify(func(cur *effects.State) error {
		fn(cur)
		return nil
	})
}

// Modify is Update for changes that can fail. When fn returns an error the
// state is left untouched and no listener runs.
func (s *Store) Modify(fn func(*effects.State) error) (effects.State, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := prev
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return prev, err
	}
	next = next.Normalize()
	s.state = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if next == prev {
		return next, nil
	}
	for _, l := range listeners {
		l(next, prev)
	}
	return next, nil
}

// Subscribe registers fn for every change and returns a function that removes it
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

// listeners in registration order; caller holds mu
func (s *Store) snapshotListeners() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}
