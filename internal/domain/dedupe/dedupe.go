// Package dedupe collapses repeated workflow rows before aggregation.
package dedupe

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/regflow/internal/domain/model"
)

// Deduper records seen row fingerprints.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper implements Deduper with a mutex-guarded set.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
	hint int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.hint)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// Fingerprint identifies an event by every field that matters to aggregation.
func Fingerprint(e model.WorkflowEvent) string {
	var b strings.Builder
	b.WriteString(e.Process)
	b.WriteByte(0)
	b.WriteString(e.ApplicationID)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(e.Level))
	b.WriteByte(0)
	b.WriteString(e.Status)
	b.WriteByte(0)
	b.WriteString(e.At.UTC().Format(time.RFC3339Nano))
	return b.String()
}

// Events returns events with exact repeats removed, preserving input order,
// and the number of rows dropped.
func Events(ctx context.Context, d Deduper, events []model.WorkflowEvent) ([]model.WorkflowEvent, int) {
	out := make([]model.WorkflowEvent, 0, len(events))
	dropped := 0
	for _, e := range events {
		if d.SeenAndRecord(ctx, Fingerprint(e)) {
			dropped++
			continue
		}
		out = append(out, e)
	}
	return out, dropped
}
