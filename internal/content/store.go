// File: internal/content/store.go
package content

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/browsergate/api/schemas"
)

var (
	// ErrChunkSetNotFound is returned for unknown or evicted chunk sets.
	ErrChunkSetNotFound = errors.New("chunk set not found")
	// ErrChunkIndexOutOfRange is returned for an index outside the set.
	ErrChunkIndexOutOfRange = errors.New("chunk index out of range")
)

// ChunkSet is an ordered, immutable list of content segments.
type ChunkSet struct {
	ID        string
	Kind      Kind
	Chunks    []string
	Units     []int
	CreatedAt time.Time
	// Meta is echoed back with every chunk (for example the page URL).
	Meta interface{}
}

// ChunkStore keeps the most recent chunk sets of one session. When full, the
// oldest set is evicted. It is safe for concurrent use.
type ChunkStore struct {
	mu    sync.Mutex
	limit int
	sets  map[string]*ChunkSet
	order []string
	now   func() time.Time
}

// NewChunkStore creates a store holding at most limit sets. limit < 1 means one.
func NewChunkStore(limit int) *ChunkStore {
	if limit < 1 {
		limit = 1
	}
	return &ChunkStore{
		limit: limit,
		sets:  make(map[string]*ChunkSet),
		now:   time.Now,
	}
}

// Put stores a new set and returns it with its generated id.
func (s *ChunkStore) Put(kind Kind, chunks []string, units []int, meta interface{}) *ChunkSet {
	set := &ChunkSet{
		ID:        uuid.NewString(),
		Kind:      kind,
		Chunks:    chunks,
		Units:     units,
		CreatedAt: s.now(),
		Meta:      meta,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = set
	s.order = append(s.order, set.ID)
	for len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.sets, oldest)
	}
	return set
}

// Get returns one chunk and its position.
func (s *ChunkStore) Get(id string, index int) (string, schemas.ChunkRef, *ChunkSet, error) {
	s.mu.Lock()
	set, ok := s.sets[id]
	s.mu.Unlock()
	if !ok {
		return "", schemas.ChunkRef{}, nil, fmt.Errorf("%w: %s", ErrChunkSetNotFound, id)
	}
	if index < 0 || index >= len(set.Chunks) {
		return "", schemas.ChunkRef{}, nil, fmt.Errorf("%w: %d not in [0,%d)", ErrChunkIndexOutOfRange, index, len(set.Chunks))
	}
	return set.Chunks[index], set.Ref(index), set, nil
}

// Ref builds the locator for chunk index.
func (c *ChunkSet) Ref(index int) schemas.ChunkRef {
	next := index + 1
	if next >= len(c.Chunks) {
		next = -1
	}
	return schemas.ChunkRef{SetID: c.ID, Index: index, Total: len(c.Chunks), Next: next}
}

// Drop removes a set. It reports whether the set existed.
func (s *ChunkStore) Drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[id]; !ok {
		return false
	}
	delete(s.sets, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every set.
func (s *ChunkStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = make(map[string]*ChunkSet)
	s.order = nil
}

// Len returns the number of stored sets.
func (s *ChunkStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}
