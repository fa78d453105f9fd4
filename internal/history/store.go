// Package history keeps the linear, append-only sequence of generated
// patterns for the current session. Records are immutable once appended and
// only the whole store is ever cleared.
package history

import (
	"sync"
	"time"
)

// Record is one generated pattern tagged with the prompt that produced it.
type Record struct {
	// ID is the creation timestamp in unix milliseconds. Records are created
	// sequentially by a single actor, so this is unique and monotonic.
	ID     int64  `json:"id"`
	Prompt string `json:"prompt"`
	Code   string `json:"code"`
	// Tempo is the cpm value extracted from the pattern's setcpm() call,
	// 0 when the pattern does not declare one.
	Tempo int `json:"tempo,omitempty"`
}

// Store is an ordered sequence of records with an active pointer. All
// mutations are serialized internally; the session layer is the only writer.
type Store struct {
	mu          sync.Mutex
	records     []Record
	activeIndex int
	token       uint64
	lastID      int64
}

// New creates an empty store.
func New() *Store {
	return &Store{activeIndex: -1}
}

// NewRecord builds a record with a fresh monotonic ID.
func (s *Store) NewRecord(prompt, code string, tempo int) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	return Record{ID: id, Prompt: prompt, Code: code, Tempo: tempo}
}

// Append adds the record to the end and returns its index.
func (s *Store) Append(rec Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	return len(s.records) - 1
}

// SetActive moves the active pointer. Out-of-range indexes are a silent
// no-op so callers never have to guard.
func (s *Store) SetActive(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.records) {
		return
	}
	s.activeIndex = index
}

// Clear empties the sequence, resets the active pointer, and bumps the
// session token so results from in-flight requests issued against the old
// history are discarded.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.activeIndex = -1
	s.token++
}

// CurrentCode returns the code of the active record, false when none active.
func (s *Store) CurrentCode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeIndex < 0 || s.activeIndex >= len(s.records) {
		return "", false
	}
	return s.records[s.activeIndex].Code, true
}

// Record returns the record at index, false when out of range.
func (s *Store) Record(index int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.records) {
		return Record{}, false
	}
	return s.records[index], true
}

// Records returns a copy of the full sequence in generation order.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ActiveIndex returns the active pointer, -1 when nothing is active.
func (s *Store) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeIndex
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Token identifies the current session generation. It changes on Clear;
// asynchronous results are applied only if the token they were issued
// against still matches.
func (s *Store) Token() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
