package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `agents:
  - kind: research
  - kind: writer
    id: writing_agent
  - kind: planning
routing:
  min_confidence: 0.6
  default_agent: generalist_agent
  llm_routing: false
storage:
  dir: /tmp/metapersona-test
parallel:
  max_workers: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Len(t, cfg.Agents, 3)
	assert.Equal(t, "writing_agent", cfg.Agents[1].ID)
	assert.Equal(t, 0.6, cfg.Routing.MinConfidence)
	assert.Equal(t, "/tmp/metapersona-test", cfg.Storage.Dir)
	assert.Equal(t, 2, cfg.Parallel.MaxWorkers)
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := Config{Agents: []AgentConfig{{Kind: "research"}}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultMinConfidence, cfg.Routing.MinConfidence)
	assert.Equal(t, DefaultStorageDir, cfg.Storage.Dir)
	assert.Equal(t, DefaultMaxWorkers, cfg.Parallel.MaxWorkers)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no agents", Config{}},
		{"unknown kind", Config{Agents: []AgentConfig{{Kind: "astrologer"}}}},
		{"duplicate id", Config{Agents: []AgentConfig{{Kind: "research"}, {Kind: "research"}}}},
		{"bad confidence", Config{
			Agents:  []AgentConfig{{Kind: "research"}},
			Routing: RoutingConfig{MinConfidence: 1.5},
		}},
		{"negative workers", Config{
			Agents:   []AgentConfig{{Kind: "research"}},
			Parallel: ParallelConfig{MaxWorkers: -1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "agents: [unclosed"))
	require.Error(t, err)
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	updated := sampleConfig + `skills_file: skills.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "skills.yaml", cfg.SkillsFile)
	case <-time.After(2 * time.Second):
		t.Fatal("config reload not observed")
	}
}

func TestWatcherKeepsPreviousOnBadReload(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("agents: [unclosed"), 0o644))

	select {
	case cfg := <-reloaded:
		t.Fatalf("broken config should not reload, got %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}
