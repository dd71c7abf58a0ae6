package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// FileStore appends detection results to an NDJSON log, one result
// per line. The log is durable: on Start the existing file is
// replayed to rebuild the counters, so stats survive a restart.
// Unknown fields in old records are ignored on replay, which keeps
// the format forward-compatible.
type FileStore struct {
	dst string

	mu    sync.Mutex
	f     *os.File
	tally counters
}

// NewFileStore writes to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{dst: path}
}

// NewFileStoreFromEnv reads LOG_PATH, defaulting to detections.ndjson
// in the working directory.
func NewFileStoreFromEnv() *FileStore {
	path := os.Getenv("LOG_PATH")
	if path == "" {
		path = "detections.ndjson"
	}
	return NewFileStore(path)
}

func (s *FileStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replay(); err != nil {
		return fmt.Errorf("replaying %s: %w", s.dst, err)
	}

	f, err := os.OpenFile(s.dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.dst, err)
	}
	s.f = f
	return nil
}

// replay rebuilds the counters from an existing log. A torn final
// line from a crashed writer is skipped rather than treated as
// corruption of the whole log.
func (s *FileStore) replay() error {
	f, err := os.Open(s.dst)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var res detect.Result
		if err := json.Unmarshal(line, &res); err != nil {
			continue
		}
		s.tally.observe(res)
	}
	return scanner.Err()
}

func (s *FileStore) Record(ctx context.Context, res detect.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("file store not started")
	}
	// One Write call per record keeps lines whole even if a crash
	// truncates the file mid-append.
	if _, err := s.f.Write(b); err != nil {
		return err
	}
	s.tally.observe(res)
	return nil
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	return s.tally.stats(), nil
}

func (s *FileStore) Export(ctx context.Context, w io.Writer) error {
	// Holding the lock for the duration avoids observing a torn
	// final line from a concurrent append.
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.dst)
	if err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	defer f.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var res detect.Result
		if err := json.Unmarshal(line, &res); err != nil {
			continue
		}
		if err := cw.Write(exportRow(res)); err != nil {
			return &ExportError{Store: s.Name(), Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *FileStore) Name() string { return "file" }
