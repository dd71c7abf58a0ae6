package pattern

import (
	"sync"
	"sync/atomic"
)

// Database is the in-memory signature catalog. Reads are lock-free
// against an immutable snapshot; writers build a new snapshot and swap
// it in atomically, so an in-flight classification sees either the
// pre- or post-update signature set, never a mix.
type Database struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	sigs  []Signature
	index map[string]int
}

// New returns an empty database.
func New() *Database {
	d := &Database{}
	d.snap.Store(&snapshot{index: map[string]int{}})
	return d
}

// NewWithDefaults returns a database seeded with the bundled community
// patterns. Fails with *LoadError if the bundled data is malformed;
// the load is all-or-nothing.
func NewWithDefaults() (*Database, error) {
	specs, err := Defaults()
	if err != nil {
		return nil, err
	}
	d := New()
	if err := d.Add(specs); err != nil {
		return nil, &LoadError{Err: err}
	}
	return d, nil
}

// Add validates and inserts a batch of specs. The batch is atomic: if
// any spec is invalid the whole batch is rejected with a
// *ValidationError and the database is unchanged. A spec whose name is
// already present replaces the earlier entry in place, keeping its
// original position in iteration order.
func (d *Database) Add(specs []Spec) error {
	compiled := make([]Signature, 0, len(specs))
	for _, spec := range specs {
		sig, err := spec.Compile()
		if err != nil {
			return err
		}
		compiled = append(compiled, sig)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.snap.Load()
	next := &snapshot{
		sigs:  append([]Signature(nil), cur.sigs...),
		index: make(map[string]int, len(cur.index)+len(compiled)),
	}
	for name, i := range cur.index {
		next.index[name] = i
	}
	for _, sig := range compiled {
		if i, ok := next.index[sig.Name]; ok {
			next.sigs[i] = sig
			continue
		}
		next.index[sig.Name] = len(next.sigs)
		next.sigs = append(next.sigs, sig)
	}

	d.snap.Store(next)
	return nil
}

// All returns the current signature set in iteration order. The
// returned slice is a read-only snapshot: it never changes under the
// caller, even if the database is updated concurrently.
func (d *Database) All() []Signature {
	return d.snap.Load().sigs
}

// Len reports the number of signatures currently loaded.
func (d *Database) Len() int {
	return len(d.snap.Load().sigs)
}

// Lookup returns the signature with the given name, if present.
func (d *Database) Lookup(name string) (Signature, bool) {
	s := d.snap.Load()
	if i, ok := s.index[name]; ok {
		return s.sigs[i], true
	}
	return Signature{}, false
}
