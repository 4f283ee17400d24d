package blackboard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDiscardsHistory(t *testing.T) {
	b := New()

	b.Write("k", "v1", "alice", nil)
	b.Update("k", "v2", "bob", nil)

	entry := b.ReadEntry("k")
	require.NotNil(t, entry)
	assert.Len(t, entry.History, 1)

	// A fresh write starts over.
	b.Write("k", "v3", "carol", nil)
	entry = b.ReadEntry("k")
	require.NotNil(t, entry)
	assert.Equal(t, "v3", entry.Value)
	assert.Empty(t, entry.History)
}

func TestUpdateHistoryAppendOnly(t *testing.T) {
	b := New()

	const n = 5
	for i := 0; i < n; i++ {
		b.Update("k", fmt.Sprintf("v%d", i), "author", nil)
	}

	entry := b.ReadEntry("k")
	require.NotNil(t, entry)
	assert.Equal(t, "v4", entry.Value)
	require.Len(t, entry.History, n-1)
	for i, rev := range entry.History {
		assert.Equal(t, fmt.Sprintf("v%d", i), rev.Value)
	}
}

func TestUpdateMissingKeyBehavesAsWrite(t *testing.T) {
	b := New()

	b.Update("k", "v1", "alice", nil)

	entry := b.ReadEntry("k")
	require.NotNil(t, entry)
	assert.Equal(t, "v1", entry.Value)
	assert.Empty(t, entry.History)
}

func TestMerge(t *testing.T) {
	b := New()

	concat := func(old, incoming any) any {
		return old.(string) + "+" + incoming.(string)
	}

	// Missing key behaves as write.
	b.Merge("k", "a", "alice", concat, nil)
	assert.Equal(t, "a", b.Read("k"))

	// Existing key merges and retains the prior value in history.
	b.Merge("k", "b", "bob", concat, nil)
	entry := b.ReadEntry("k")
	require.NotNil(t, entry)
	assert.Equal(t, "a+b", entry.Value)
	require.Len(t, entry.History, 1)
	assert.Equal(t, "a", entry.History[0].Value)
}

func TestMergeConcurrentIncrementsLoseNothing(t *testing.T) {
	b := New()
	b.Write("counter", 0, "seed", nil)

	add := func(old, incoming any) any {
		return old.(int) + incoming.(int)
	}

	const mergers = 64
	var wg sync.WaitGroup
	for i := 0; i < mergers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Merge("counter", 1, "worker", add, nil)
		}()
	}
	wg.Wait()

	// Every merge must have seen the value committed by the one before it.
	assert.Equal(t, mergers, b.Read("counter"))

	entry := b.ReadEntry("counter")
	require.NotNil(t, entry)
	assert.Len(t, entry.History, mergers)
}

func TestReadMissingReturnsNil(t *testing.T) {
	b := New()
	assert.Nil(t, b.Read("absent"))
	assert.Nil(t, b.ReadEntry("absent"))
}

func TestTraceLogRecordsReads(t *testing.T) {
	b := New()

	b.Write("k", "v", "alice", nil)
	b.Read("k")
	b.Read("absent")

	trace := b.TraceLog()
	require.Len(t, trace, 3)
	assert.Equal(t, "write", trace[0].Action)
	assert.Equal(t, "read", trace[1].Action)
	assert.Equal(t, "read_miss", trace[2].Action)
}

func TestTraceCap(t *testing.T) {
	b := New(WithTraceCap(3))

	for i := 0; i < 10; i++ {
		b.Write("k", i, "author", nil)
	}

	trace := b.TraceLog()
	require.Len(t, trace, 3)
	assert.Equal(t, 9, trace[2].Value)
}

func TestConcurrentUpdates(t *testing.T) {
	b := New()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Update("k", fmt.Sprintf("w%d-%d", id, i), fmt.Sprintf("writer-%d", id), nil)
			}
		}(w)
	}
	wg.Wait()

	entry := b.ReadEntry("k")
	require.NotNil(t, entry)
	// First update creates the entry; every later one pushes history.
	assert.Len(t, entry.History, writers*perWriter-1)
}

func TestParallelGroupViews(t *testing.T) {
	b := New()

	b.Write(FragmentKey("g1", "f1"), map[string]any{"state": "completed"}, "engine", nil)
	b.Write(FragmentKey("g1", "f2"), map[string]any{"state": "failed"}, "engine", nil)
	b.Write(FragmentKey("g2", "f3"), map[string]any{"state": "pending"}, "engine", nil)

	assert.Equal(t, []string{"g1", "g2"}, b.ListParallelGroups())

	group := b.ParallelGroup("g1")
	require.Len(t, group, 2)
	assert.Contains(t, group, "f1")
	assert.Contains(t, group, "f2")
}

func TestMergeHistory(t *testing.T) {
	b := New()

	b.LogMergeDecision(MergeDecision{GroupID: "g1", Strategy: "priority", Result: "first"})
	b.LogMergeDecision(MergeDecision{GroupID: "g1", Strategy: "last_write_wins", Result: "second"})

	history := b.MergeHistory("g1")
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Result)
	assert.Equal(t, "second", history[1].Result)

	assert.Empty(t, b.MergeHistory("absent"))
}

func TestPlanViews(t *testing.T) {
	b := New()

	b.Write(PlanKey("p1"), map[string]any{"status": "fragmented"}, "planner", nil)
	b.Write(PlanFragmentKey("p1", "f1"), map[string]any{"state": "pending"}, "planner", nil)
	b.Write(NegotiationKey("p1", "f1"), map[string]any{"selected": "agent_a"}, "planner", nil)

	assert.NotNil(t, b.PlanState("p1"))
	assert.Len(t, b.ListPlanFragments("p1"), 1)
	assert.Len(t, b.ListNegotiationLogs("p1"), 1)
}
