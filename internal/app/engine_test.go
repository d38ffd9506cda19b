package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolmesh/internal/dispatch"
	"toolmesh/internal/domain"
	"toolmesh/internal/infra/config"
	"toolmesh/internal/registry"
)

type fakeTransport struct {
	tools map[string][]domain.RawTool
}

func (f *fakeTransport) ListTools(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
	tools, ok := f.tools[endpoint]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return tools, nil
}

func (f *fakeTransport) FetchSchema(ctx context.Context, endpoint, tool string) (*jsonschema.Schema, error) {
	return nil, errors.New("no schema")
}

func (f *fakeTransport) Execute(ctx context.Context, endpoint, tool string, params map[string]any) (any, error) {
	return "done", nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	loader := config.NewLoader(nil)
	cfg, err := loader.Parse([]byte(`
servers:
  - name: a
    url: http://a
retryBackoffBaseMillis: 1
`))
	require.NoError(t, err)
	return cfg
}

func testTransport() *fakeTransport {
	return &fakeTransport{tools: map[string][]domain.RawTool{
		"http://a": {
			{Name: "calculator", Description: "Evaluate a math expression", Parameters: map[string]string{"expression": "string"}},
			{Name: "web_search", Description: "Search the web", Parameters: map[string]string{"query": "string"}},
		},
	}}
}

func TestEngineEndToEnd(t *testing.T) {
	engine, err := NewEngine(testConfig(t), testTransport(), nil, nil)
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	ctx := context.Background()

	discovered, err := engine.DiscoverAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, discovered["http://a"], 2)

	matches, err := engine.SelectTools(ctx, "Calculate 2 + 2 * 3", nil, 3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "calculator", matches[0].Tool.Name)

	result := engine.ExecuteWithRetry(ctx, "http://a", "calculator", map[string]any{"expression": "2+2*3"}, -1)
	require.True(t, result.Success)
	assert.Equal(t, "done", result.Result)

	stats := engine.ServerStatistics()
	assert.Equal(t, 2, stats.Tools.TotalCount)
	require.NotEmpty(t, stats.Tools.MostUsed)
	assert.Equal(t, "calculator", stats.Tools.MostUsed[0].Name)

	health := engine.CheckAllHealth(ctx)
	require.Contains(t, health, "http://a")
	assert.True(t, health["http://a"].Healthy)
}

func TestEngineExecuteMultipleFeedsUsageHistory(t *testing.T) {
	engine, err := NewEngine(testConfig(t), testTransport(), nil, nil)
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	ctx := context.Background()
	_, err = engine.DiscoverAll(ctx, false)
	require.NoError(t, err)

	results := engine.ExecuteMultiple(ctx, []dispatch.Request{
		{Endpoint: "http://a", Tool: "calculator", Parameters: map[string]any{"expression": "1+1"}},
		{Endpoint: "http://a", Tool: "web_search", Parameters: map[string]any{"query": "golang"}},
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	selection := engine.SelectionStatistics()
	assert.Zero(t, selection.TotalSelections, "executions alone do not create selections")
}

func TestEngineApplyConfigInvalidatesCatalog(t *testing.T) {
	transport := testTransport()
	engine, err := NewEngine(testConfig(t), transport, nil, nil)
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	ctx := context.Background()
	_, err = engine.DiscoverAll(ctx, false)
	require.NoError(t, err)

	transport.tools["http://b"] = []domain.RawTool{
		{Name: "read_file", Description: "Read a file"},
	}
	require.NoError(t, engine.ApplyConfig(config.Config{
		Servers: []registry.Endpoint{
			{Name: "a", URL: "http://a", Enabled: true},
			{Name: "b", URL: "http://b", Enabled: true},
		},
	}))

	// The reload forces the next discovery to sweep the new fleet even
	// though the previous snapshot was still fresh.
	discovered, err := engine.DiscoverAll(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, discovered, "http://b")
}

func TestEnginePersistsUsageAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.StatePath = filepath.Join(t.TempDir(), "state.db")
	transport := testTransport()

	engine, err := NewEngine(cfg, transport, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = engine.DiscoverAll(ctx, false)
	require.NoError(t, err)

	result := engine.ExecuteWithRetry(ctx, "http://a", "calculator", map[string]any{"expression": "1"}, 0)
	require.True(t, result.Success)
	require.NoError(t, engine.Close())

	restarted, err := NewEngine(cfg, transport, nil, nil)
	require.NoError(t, err)
	defer func() { _ = restarted.Close() }()
	_, err = restarted.DiscoverAll(ctx, false)
	require.NoError(t, err)

	stats := restarted.ServerStatistics()
	require.NotEmpty(t, stats.Tools.MostUsed)
	assert.Equal(t, "calculator", stats.Tools.MostUsed[0].Name)
	assert.Equal(t, int64(1), stats.Tools.MostUsed[0].UsageCount)

	// No config requires no store; the engine runs fully in-memory.
	cfg.StatePath = ""
	inMemory, err := NewEngine(cfg, transport, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, inMemory.Close())
}

func TestEngineRequiresServers(t *testing.T) {
	_, err := NewEngine(config.Config{}, testTransport(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoServersConfigured)
}

func TestValidateCommandPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: a
    url: http://a
`), 0o644))

	application := New(nil)
	assert.NoError(t, application.Validate(context.Background(), ValidateConfig{ConfigPath: path}))
	assert.Error(t, application.Validate(context.Background(), ValidateConfig{ConfigPath: filepath.Join(dir, "missing.yaml")}))
}
