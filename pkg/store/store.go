package store

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// Store persists detection results and answers aggregate queries.
// Record is best-effort by contract: the façade never lets a store
// failure reach the caller of Check. Stats must reflect every
// successfully recorded result under the backend's own consistency
// model. Export writes history without draining or mutating the store.
type Store interface {
	Start(ctx context.Context) error
	Record(ctx context.Context, res detect.Result) error
	Stats(ctx context.Context) (Stats, error)
	Export(ctx context.Context, w io.Writer) error
	Close() error
	Name() string // store name for metrics and logging
}

// Stats is the aggregate view over recorded detection results. It is
// recomputed on demand, never cached across writes.
type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	BotRequests   int64            `json:"bot_requests"`
	BotTypes      map[string]int64 `json:"bot_types,omitempty"`
}

// ExportError surfaces an export failure; the stored history is left
// intact when it is returned.
type ExportError struct {
	Store string
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting %s store: %v", e.Store, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// counters is the in-process tally shared by stores that aggregate
// locally. Callers hold their own lock or rely on the embedded one.
type counters struct {
	mu     sync.Mutex
	total  int64
	bots   int64
	byType map[string]int64
}

func (c *counters) observe(res detect.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if res.IsBot {
		c.bots++
		if c.byType == nil {
			c.byType = make(map[string]int64)
		}
		c.byType[res.BotType]++
	}
}

func (c *counters) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{TotalRequests: c.total, BotRequests: c.bots}
	if len(c.byType) > 0 {
		s.BotTypes = make(map[string]int64, len(c.byType))
		for k, v := range c.byType {
			s.BotTypes[k] = v
		}
	}
	return s
}
