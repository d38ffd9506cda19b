package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolmesh/internal/domain"
	"toolmesh/internal/infra/limiter"
	"toolmesh/internal/registry"
)

// mockTransport implements domain.ToolTransport for testing.
type mockTransport struct {
	mu        sync.Mutex
	listFunc  func(ctx context.Context, endpoint string) ([]domain.RawTool, error)
	listCalls map[string]int
}

func newMockTransport(listFunc func(ctx context.Context, endpoint string) ([]domain.RawTool, error)) *mockTransport {
	return &mockTransport{listFunc: listFunc, listCalls: make(map[string]int)}
}

func (m *mockTransport) ListTools(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
	m.mu.Lock()
	m.listCalls[endpoint]++
	m.mu.Unlock()
	return m.listFunc(ctx, endpoint)
}

func (m *mockTransport) FetchSchema(ctx context.Context, endpoint, tool string) (*jsonschema.Schema, error) {
	return nil, errors.New("not implemented")
}

func (m *mockTransport) Execute(ctx context.Context, endpoint, tool string, params map[string]any) (any, error) {
	return nil, errors.New("not implemented")
}

func (m *mockTransport) calls(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[endpoint]
}

func newTestCatalog(t *testing.T, endpoints []registry.Endpoint, transport domain.ToolTransport) (*Catalog, *registry.Registry) {
	t.Helper()
	reg, err := registry.New(endpoints)
	require.NoError(t, err)
	lim := limiter.New(4, nil)
	monitor := registry.NewMonitor(reg, transport, time.Second, nil, nil)
	cat := New(Options{
		Registry:  reg,
		Monitor:   monitor,
		Transport: transport,
		Limiter:   lim,
		CacheTTL:  5 * time.Minute,
	})
	return cat, reg
}

func TestDiscoverAllSweepsAndGroupsByEndpoint(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		switch endpoint {
		case "http://a":
			return []domain.RawTool{
				{Name: "read_file", Description: "Read a file", Parameters: map[string]string{"path": "string"}},
				{Name: "write_file", Description: "Write a file"},
			}, nil
		default:
			return []domain.RawTool{
				{Name: "web_search", Description: "Search the web"},
			}, nil
		}
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
		{Name: "b", URL: "http://b", Enabled: true},
	}, transport)

	discovered, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, discovered, 2)
	require.Len(t, discovered["http://a"], 2)
	require.Len(t, discovered["http://b"], 1)

	tool := discovered["http://a"][0]
	assert.Equal(t, "read_file", tool.Name)
	assert.Equal(t, domain.CategoryFileOperations, tool.Category)
	assert.Contains(t, tool.Tags, "file")
	assert.True(t, tool.HasParameter("path"))
}

func TestDiscoverAllServesCachedSnapshotWithinTTL(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return []domain.RawTool{{Name: "read_file", Description: "Read a file"}}, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
	}, transport)

	_, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	// Health probe plus discovery.
	sweepCalls := transport.calls("http://a")

	discovered, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, discovered["http://a"], 1)
	assert.Equal(t, sweepCalls, transport.calls("http://a"), "fresh snapshot must not touch the network")

	// forceRefresh bypasses the TTL.
	_, err = cat.DiscoverAll(context.Background(), true)
	require.NoError(t, err)
	assert.Greater(t, transport.calls("http://a"), sweepCalls)
}

func TestDiscoverAllAllUnhealthyReturnsEmptyMap(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return nil, errors.New("connection refused")
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
	}, transport)

	discovered, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, discovered)

	// The failed sweep must not start a TTL window: the next call probes
	// again instead of serving the empty result from cache.
	before := transport.calls("http://a")
	_, err = cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	assert.Greater(t, transport.calls("http://a"), before)
}

func TestDiscoverAllIsolatesEndpointFailures(t *testing.T) {
	probed := make(map[string]bool)
	var mu sync.Mutex
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		mu.Lock()
		first := !probed[endpoint]
		probed[endpoint] = true
		mu.Unlock()

		if endpoint == "http://bad" {
			if first {
				// Health probe succeeds so the endpoint enters the sweep,
				// then discovery fails.
				return []domain.RawTool{}, nil
			}
			return nil, errors.New("boom")
		}
		return []domain.RawTool{{Name: "web_search", Description: "Search the web"}}, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "good", URL: "http://good", Enabled: true},
		{Name: "bad", URL: "http://bad", Enabled: true},
	}, transport)

	discovered, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, discovered["http://good"], 1)
	assert.Empty(t, discovered["http://bad"])
}

func TestDiscoverAllExcludesUnhealthyEndpoints(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		if endpoint == "http://down" {
			return nil, errors.New("connection refused")
		}
		return []domain.RawTool{{Name: "web_search", Description: "Search the web"}}, nil
	})
	cat, reg := newTestCatalog(t, []registry.Endpoint{
		{Name: "up", URL: "http://up", Enabled: true},
		{Name: "down", URL: "http://down", Enabled: true},
	}, transport)

	discovered, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, discovered, "http://up")
	assert.NotContains(t, discovered, "http://down", "endpoints failing the health barrier are not swept")

	health, ok := reg.Health("http://down")
	require.True(t, ok)
	assert.False(t, health.Healthy)
}

func TestDiscoverAllSkipsDisabledEndpoints(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return []domain.RawTool{{Name: "read_file", Description: "Read a file"}}, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "on", URL: "http://on", Enabled: true},
		{Name: "off", URL: "http://off", Enabled: false},
	}, transport)

	discovered, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, discovered, "http://on")
	assert.NotContains(t, discovered, "http://off")
	assert.Zero(t, transport.calls("http://off"))
}

func TestRecordExecutionRunningAverage(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return []domain.RawTool{{Name: "calculator", Description: "Evaluate a math expression"}}, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
	}, transport)
	_, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)

	cat.RecordExecution("http://a", "calculator", 100*time.Millisecond)
	cat.RecordExecution("http://a", "calculator", 300*time.Millisecond)

	tool, ok := cat.Tool("http://a", "calculator")
	require.True(t, ok)
	assert.Equal(t, int64(2), tool.UsageCount)
	assert.Equal(t, 200*time.Millisecond, tool.AvgResponseTime)
	assert.False(t, tool.LastUsed.IsZero())
}

func TestDiscoverAllPreservesStatsAcrossSweeps(t *testing.T) {
	advertised := []domain.RawTool{{Name: "calculator", Description: "Evaluate a math expression"}}
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return advertised, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
	}, transport)
	_, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)

	cat.RecordExecution("http://a", "calculator", 150*time.Millisecond)

	advertised = append(advertised, domain.RawTool{Name: "unit_converter", Description: "Convert units"})
	_, err = cat.DiscoverAll(context.Background(), true)
	require.NoError(t, err)

	tool, ok := cat.Tool("http://a", "calculator")
	require.True(t, ok)
	assert.Equal(t, int64(1), tool.UsageCount)
	assert.Equal(t, 150*time.Millisecond, tool.AvgResponseTime)
	assert.False(t, tool.LastUsed.IsZero())

	fresh, ok := cat.Tool("http://a", "unit_converter")
	require.True(t, ok)
	assert.Zero(t, fresh.UsageCount)
}

func TestToolsByCategoryAndTags(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return []domain.RawTool{
			{Name: "read_file", Description: "Read a file"},
			{Name: "web_search", Description: "Search the web"},
			{Name: "system_info", Description: "Report system information"},
		}, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
	}, transport)
	_, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)

	byCategory := cat.ToolsByCategory(domain.CategoryWebOperations)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "web_search", byCategory[0].Name)

	byTags := cat.ToolsByTags([]string{"network"})
	require.Len(t, byTags, 1)
	assert.Equal(t, "system_info", byTags[0].Name)
}

func TestStatisticsLeaderboards(t *testing.T) {
	transport := newMockTransport(func(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
		return []domain.RawTool{
			{Name: "calculator", Description: "Evaluate a math expression"},
			{Name: "web_search", Description: "Search the web"},
		}, nil
	})
	cat, _ := newTestCatalog(t, []registry.Endpoint{
		{Name: "a", URL: "http://a", Enabled: true},
	}, transport)
	_, err := cat.DiscoverAll(context.Background(), false)
	require.NoError(t, err)

	cat.RecordExecution("http://a", "calculator", 50*time.Millisecond)
	cat.RecordExecution("http://a", "calculator", 50*time.Millisecond)
	cat.RecordExecution("http://a", "web_search", 500*time.Millisecond)

	stats := cat.Statistics()
	assert.Equal(t, 2, stats.Tools.TotalCount)
	assert.Equal(t, 2, stats.Tools.ByServer["http://a"])
	assert.Equal(t, 1, stats.Tools.ByCategory[domain.CategoryComputation])

	require.NotEmpty(t, stats.Tools.MostUsed)
	assert.Equal(t, "calculator", stats.Tools.MostUsed[0].Name)
	assert.Equal(t, int64(2), stats.Tools.MostUsed[0].UsageCount)

	require.NotEmpty(t, stats.Tools.FastestResponse)
	assert.Equal(t, "calculator", stats.Tools.FastestResponse[0].Name)

	health, ok := stats.Servers["http://a"]
	require.True(t, ok)
	assert.True(t, health.Healthy)
}
