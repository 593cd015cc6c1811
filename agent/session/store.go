package session

import (
	"sync"
	"time"
)

// Store holds per-user state behind a single lock. Update runs its mutation
// under the lock, so two concurrent updates to the same user serialize
// instead of overwriting each other.
type Store struct {
	mu     sync.Mutex
	states map[int64]*State
}

func NewStore() *Store {
	return &Store{states: make(map[int64]*State)}
}

// Update applies fn to the user's state under the lock and returns a copy of
// the result.
func (s *Store) Update(userID int64, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		st = &State{UserID: userID}
		s.states[userID] = st
	}
	fn(st)
	st.UpdatedAt = time.Now().UTC()
	return st.clone()
}

// Snapshot returns a copy of the user's state.
func (s *Store) Snapshot(userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return State{UserID: userID}, false
	}
	return st.clone(), true
}

// Reset drops the user's state entirely.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// LossyStore is the read-copy/write-back variant of Store. Its Get/Put pair
// does not serialize concurrent modifications: a Put overwrites whatever was
// stored since the matching Get, losing the interleaved update. Kept as an
// executable illustration of why Store.Update takes a closure.
type LossyStore struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewLossyStore() *LossyStore {
	return &LossyStore{states: make(map[int64]State)}
}

func (s *LossyStore) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return State{UserID: userID}
	}
	return st.clone()
}

func (s *LossyStore) Put(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.UserID] = st
}
