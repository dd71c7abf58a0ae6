package store

import (
	"context"
	"encoding/csv"
	"io"
	"sync"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// MemoryStore keeps detection results for the lifetime of the
// process. Counters are unbounded; the retained result history is a
// ring capped at capacity (zero means unbounded), so stats stay exact
// even after old results are evicted from the ring.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	results  []detect.Result
	tally    counters
}

// NewMemoryStore returns a memory store retaining at most capacity
// results; capacity <= 0 retains everything.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Start(ctx context.Context) error { return nil }

func (s *MemoryStore) Record(ctx context.Context, res detect.Result) error {
	s.mu.Lock()
	if s.capacity > 0 && len(s.results) == s.capacity {
		copy(s.results, s.results[1:])
		s.results[len(s.results)-1] = res
	} else {
		s.results = append(s.results, res)
	}
	s.mu.Unlock()

	s.tally.observe(res)
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	return s.tally.stats(), nil
}

func (s *MemoryStore) Export(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	results := append([]detect.Result(nil), s.results...)
	s.mu.Unlock()

	if err := writeExport(csv.NewWriter(w), results); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Name() string { return "memory" }
