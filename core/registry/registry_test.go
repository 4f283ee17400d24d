package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/metapersona/core/agent"
	"github.com/adalundhe/metapersona/core/storage"
)

type stubAgent struct {
	id         string
	role       string
	confidence float64
}

func (a *stubAgent) ID() string                           { return a.id }
func (a *stubAgent) Role() string                         { return a.role }
func (a *stubAgent) Description() string                  { return "stub " + a.role }
func (a *stubAgent) Capabilities() []agent.Capability     { return nil }
func (a *stubAgent) CanHandleTask(string, map[string]any) float64 { return a.confidence }
func (a *stubAgent) HandleTask(_ context.Context, task string, _ map[string]any) (*agent.TaskResult, error) {
	return agent.Success(a.id, "handled: "+task), nil
}

func TestRegisterIdempotent(t *testing.T) {
	r := New()

	r.Register(&stubAgent{id: "a1", role: "research"})
	r.Register(&stubAgent{id: "a1", role: "writing"})

	assert.Equal(t, 1, r.Len())
	require.Len(t, r.ListAll(), 1)

	// The latest instance wins.
	assert.Equal(t, "writing", r.Get("a1").Role())
}

func TestDeregister(t *testing.T) {
	r := New()
	r.Register(&stubAgent{id: "a1", role: "research"})

	assert.True(t, r.Deregister("a1"))
	assert.False(t, r.Deregister("a1"))
	assert.Nil(t, r.Get("a1"))
}

func TestGetByRoleCaseInsensitive(t *testing.T) {
	r := New()
	r.Register(&stubAgent{id: "a1", role: "Research"})
	r.Register(&stubAgent{id: "a2", role: "research"})
	r.Register(&stubAgent{id: "a3", role: "writing"})

	agents := r.GetByRole("RESEARCH")
	require.Len(t, agents, 2)
	assert.Equal(t, "a1", agents[0].ID())
	assert.Equal(t, "a2", agents[1].ID())
}

func TestListRolesDeduplicated(t *testing.T) {
	r := New()
	r.Register(&stubAgent{id: "a1", role: "research"})
	r.Register(&stubAgent{id: "a2", role: "research"})
	r.Register(&stubAgent{id: "a3", role: "writing"})

	assert.Equal(t, []string{"research", "writing"}, r.ListRoles())
}

func TestAgentsForTask(t *testing.T) {
	r := New()
	r.Register(&stubAgent{id: "low", role: "generalist", confidence: 0.4})
	r.Register(&stubAgent{id: "high", role: "research", confidence: 0.9})
	r.Register(&stubAgent{id: "mid", role: "writing", confidence: 0.6})

	candidates := r.AgentsForTask("some task", nil, 0.5)
	require.Len(t, candidates, 2)
	assert.Equal(t, "high", candidates[0].Agent.ID())
	assert.Equal(t, "mid", candidates[1].Agent.ID())
}

func TestAgentsForTaskStableTies(t *testing.T) {
	r := New()
	r.Register(&stubAgent{id: "first", role: "a", confidence: 0.7})
	r.Register(&stubAgent{id: "second", role: "b", confidence: 0.7})
	r.Register(&stubAgent{id: "third", role: "c", confidence: 0.7})

	candidates := r.AgentsForTask("task", nil, 0.5)
	require.Len(t, candidates, 3)
	assert.Equal(t, "first", candidates[0].Agent.ID())
	assert.Equal(t, "second", candidates[1].Agent.ID())
	assert.Equal(t, "third", candidates[2].Agent.ID())
}

func TestSnapshotPersistence(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(WithStore(store))

	r.Register(&stubAgent{id: "a1", role: "research"})
	r.Register(&stubAgent{id: "a2", role: "writing"})

	var snapshot []Descriptor
	require.NoError(t, store.Read(SnapshotKey, &snapshot))
	require.Len(t, snapshot, 2)
	assert.Equal(t, "a1", snapshot[0].AgentID)

	r.Deregister("a1")
	require.NoError(t, store.Read(SnapshotKey, &snapshot))
	require.Len(t, snapshot, 1)
	assert.Equal(t, "a2", snapshot[0].AgentID)
}

func TestSnapshotReflectsAllConcurrentRegistrations(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(WithStore(store))

	const agents = 16
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register(&stubAgent{id: fmt.Sprintf("a%d", i), role: "research"})
		}(i)
	}
	wg.Wait()

	// The snapshot written last must carry every registration.
	var snapshot []Descriptor
	require.NoError(t, store.Read(SnapshotKey, &snapshot))
	assert.Len(t, snapshot, agents)
}

func TestSkillCounter(t *testing.T) {
	r := New(WithSkillCounter(func(a agent.Agent) int {
		if a.Role() == "research" {
			return 3
		}
		return 0
	}))

	r.Register(&stubAgent{id: "a1", role: "research"})
	r.Register(&stubAgent{id: "a2", role: "writing"})

	descriptors := r.Descriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, 3, descriptors[0].Skills)
	assert.Equal(t, 0, descriptors[1].Skills)
}

func TestGetStatus(t *testing.T) {
	r := New()
	r.Register(&stubAgent{id: "a1", role: "research"})
	r.Register(&stubAgent{id: "a2", role: "writing"})

	r.RecordInteraction("a1")
	r.RecordInteraction("a1")
	r.RecordInteraction("missing")

	status := r.GetStatus()
	assert.Equal(t, 2, status.AgentCount)
	assert.Equal(t, []string{"research", "writing"}, status.Roles)
	assert.Equal(t, 2, status.Interactions["a1"])
	assert.Equal(t, 0, status.Interactions["a2"])
}
