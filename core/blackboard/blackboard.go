// Package blackboard implements the shared, versioned key-value store that
// agents and engines use to publish intermediate artifacts. Every mutation
// keeps the prior value in per-key history, and every operation (reads
// included) lands in an append-only trace log for audit.
package blackboard

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Entries
// =============================================================================

// Revision is one superseded value of a key.
type Revision struct {
	Value     any       `json:"value"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is the current state of a key plus its full revision history.
type Entry struct {
	Key       string         `json:"key"`
	Value     any            `json:"value"`
	Author    string         `json:"author"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// History holds prior values, oldest first. Only update pushes here;
	// write starts a fresh entry.
	History []Revision `json:"history,omitempty"`
}

// TraceEvent is one row of the blackboard's audit log.
type TraceEvent struct {
	Action    string         `json:"action"`
	Key       string         `json:"key"`
	Author    string         `json:"author"`
	Value     any            `json:"value,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// MergeFunc combines an existing value with an incoming one.
type MergeFunc func(old, incoming any) any

// =============================================================================
// Blackboard
// =============================================================================

// Blackboard is the process-wide coordination store. All operations are
// serialized behind a single lock; the blackboard is a consistency point,
// not a performance path.
type Blackboard struct {
	mu      sync.Mutex
	entries map[string]*Entry
	trace   []TraceEvent
	logger  *slog.Logger

	// traceCap bounds the trace log when > 0. Unbounded by default.
	traceCap int
}

// Option configures a Blackboard.
type Option func(*Blackboard)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Blackboard) { b.logger = logger }
}

// WithTraceCap bounds the trace log to the most recent n events.
func WithTraceCap(n int) Option {
	return func(b *Blackboard) { b.traceCap = n }
}

// New creates an empty blackboard.
func New(opts ...Option) *Blackboard {
	b := &Blackboard{
		entries: make(map[string]*Entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Write stores value under key as a fresh entry. Any prior value at the key
// is discarded along with its history. Use Update to retain history.
func (b *Blackboard) Write(key string, value any, author string, metadata map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = &Entry{
		Key:       key,
		Value:     value,
		Author:    author,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	b.appendTrace("write", key, author, value, metadata)
}

// Update overwrites the value at key, pushing the previous value into the
// entry's history first. A missing key behaves as Write.
func (b *Blackboard) Update(key string, value any, author string, metadata map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		b.entries[key] = &Entry{
			Key:       key,
			Value:     value,
			Author:    author,
			Timestamp: time.Now(),
			Metadata:  metadata,
		}
		b.appendTrace("write", key, author, value, metadata)
		return
	}

	entry.History = append(entry.History, Revision{
		Value:     entry.Value,
		Author:    entry.Author,
		Timestamp: entry.Timestamp,
	})
	entry.Value = value
	entry.Author = author
	entry.Timestamp = time.Now()
	if metadata != nil {
		entry.Metadata = metadata
	}
	b.appendTrace("update", key, author, value, metadata)
}

// Merge combines the existing value with the incoming one via fn and applies
// the result as an Update. A missing key behaves as Write. The read, the
// merge computation, and the commit all happen under one lock hold, so a
// concurrent mutation can never land between the read and the commit.
func (b *Blackboard) Merge(key string, value any, author string, fn MergeFunc, metadata map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		b.entries[key] = &Entry{
			Key:       key,
			Value:     value,
			Author:    author,
			Timestamp: time.Now(),
			Metadata:  metadata,
		}
		b.appendTrace("write", key, author, value, metadata)
		return
	}

	merged := value
	if fn != nil {
		merged = fn(entry.Value, value)
	}

	entry.History = append(entry.History, Revision{
		Value:     entry.Value,
		Author:    entry.Author,
		Timestamp: entry.Timestamp,
	})
	entry.Value = merged
	entry.Author = author
	entry.Timestamp = time.Now()
	if metadata != nil {
		entry.Metadata = metadata
	}
	b.appendTrace("update", key, author, merged, metadata)
}

// Read returns the current value at key, or nil when absent. Reads do not
// mutate entries but are still trace-logged.
func (b *Blackboard) Read(key string) any {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		b.appendTrace("read_miss", key, "", nil, nil)
		return nil
	}
	b.appendTrace("read", key, "", entry.Value, nil)
	return entry.Value
}

// ReadEntry returns the full entry at key, including history, or nil.
func (b *Blackboard) ReadEntry(key string) *Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		b.appendTrace("read_miss", key, "", nil, nil)
		return nil
	}
	b.appendTrace("read", key, "", entry.Value, nil)

	cp := *entry
	cp.History = append([]Revision(nil), entry.History...)
	return &cp
}

// Keys returns every stored key with the given prefix.
func (b *Blackboard) Keys(prefix string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []string
	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// TraceLog returns a copy of the audit log.
func (b *Blackboard) TraceLog() []TraceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]TraceEvent, len(b.trace))
	copy(out, b.trace)
	return out
}

// Len reports the number of live keys.
func (b *Blackboard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// appendTrace must be called with b.mu held.
func (b *Blackboard) appendTrace(action, key, author string, value any, metadata map[string]any) {
	b.trace = append(b.trace, TraceEvent{
		Action:    action,
		Key:       key,
		Author:    author,
		Value:     value,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
	if b.traceCap > 0 && len(b.trace) > b.traceCap {
		b.trace = b.trace[len(b.trace)-b.traceCap:]
	}
}

// =============================================================================
// Key conventions
// =============================================================================

// FragmentKey is the blackboard key for a fragment's state within a parallel
// group.
func FragmentKey(groupID, fragmentID string) string {
	return fmt.Sprintf("parallel_group:%s:fragment:%s", groupID, fragmentID)
}

// MergeKey is the blackboard key for a group's merge decision log.
func MergeKey(groupID string) string {
	return fmt.Sprintf("merge:%s", groupID)
}

// PlanKey is the blackboard key for a distributed plan's state.
func PlanKey(planID string) string {
	return fmt.Sprintf("plan:%s", planID)
}

// PlanFragmentKey is the blackboard key for one fragment of a plan.
func PlanFragmentKey(planID, fragmentID string) string {
	return fmt.Sprintf("plan:%s:fragment:%s", planID, fragmentID)
}

// NegotiationKey is the blackboard key for one fragment's negotiation log.
func NegotiationKey(planID, fragmentID string) string {
	return fmt.Sprintf("plan:%s:negotiation:%s", planID, fragmentID)
}

// ConsensusKey is the blackboard key for a consensus merge decision.
func ConsensusKey(traceID string) string {
	return fmt.Sprintf("consensus:%s:consensus", traceID)
}
