// Package catalog maintains a TTL-bounded snapshot of the tools advertised
// by every healthy remote server, enriched with derived categories, tags,
// and running usage statistics.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"toolmesh/internal/domain"
	"toolmesh/internal/infra/limiter"
	"toolmesh/internal/infra/statestore"
	"toolmesh/internal/registry"
)

type Options struct {
	Registry         *registry.Registry
	Monitor          *registry.Monitor
	Transport        domain.ToolTransport
	Limiter          *limiter.Limiter
	DiscoveryTimeout time.Duration
	CacheTTL         time.Duration
	Store            *statestore.Store // optional
	Logger           *zap.Logger
	Metrics          domain.Metrics
}

type Catalog struct {
	mu        sync.RWMutex
	tools     map[string]*domain.ToolDescriptor
	lastSweep time.Time

	registry         *registry.Registry
	monitor          *registry.Monitor
	transport        domain.ToolTransport
	limiter          *limiter.Limiter
	discoveryTimeout time.Duration
	ttl              time.Duration
	store            *statestore.Store
	logger           *zap.Logger
	metrics          domain.Metrics

	now func() time.Time
}

func New(opts Options) *Catalog {
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = time.Duration(domain.DefaultDiscoveryTimeoutSeconds) * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Duration(domain.DefaultCacheTTLSeconds) * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = domain.NopMetrics{}
	}
	return &Catalog{
		tools:            make(map[string]*domain.ToolDescriptor),
		registry:         opts.Registry,
		monitor:          opts.Monitor,
		transport:        opts.Transport,
		limiter:          opts.Limiter,
		discoveryTimeout: opts.DiscoveryTimeout,
		ttl:              opts.CacheTTL,
		store:            opts.Store,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		now:              time.Now,
	}
}

// DiscoverAll returns tools grouped by endpoint. Within the cache TTL the
// current snapshot is returned with no network I/O; otherwise a full sweep
// runs: health barrier first, then one discovery call per healthy endpoint
// under the shared limiter. A failing endpoint contributes an empty list
// for the sweep and never aborts its siblings.
func (c *Catalog) DiscoverAll(ctx context.Context, forceRefresh bool) (map[string][]domain.ToolDescriptor, error) {
	if !forceRefresh {
		c.mu.RLock()
		fresh := !c.lastSweep.IsZero() && c.now().Sub(c.lastSweep) < c.ttl
		c.mu.RUnlock()
		if fresh {
			return c.Snapshot(), nil
		}
	}

	c.monitor.CheckAllHealth(ctx)
	healthy := c.registry.HealthyEndpoints()
	if len(healthy) == 0 {
		c.logger.Warn("no healthy servers available for tool discovery")
		return map[string][]domain.ToolDescriptor{}, nil
	}

	type sweepResult struct {
		tools []domain.RawTool
		err   error
	}
	results := make([]sweepResult, len(healthy))

	var g errgroup.Group
	for i, endpoint := range healthy {
		g.Go(func() error {
			start := c.now()
			err := c.limiter.Do(ctx, func(ctx context.Context) error {
				discoverCtx, cancel := context.WithTimeout(ctx, c.discoveryTimeout)
				defer cancel()
				tools, err := c.transport.ListTools(discoverCtx, endpoint)
				results[i] = sweepResult{tools: tools, err: err}
				return nil
			})
			if err != nil {
				results[i] = sweepResult{err: err}
			}
			c.metrics.ObserveDiscovery(endpoint, c.now().Sub(start), len(results[i].tools), results[i].err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	discovered := make(map[string][]domain.ToolDescriptor, len(healthy))
	c.mu.Lock()
	for i, endpoint := range healthy {
		if results[i].err != nil {
			c.logger.Error("tool discovery failed",
				zap.String("endpoint", endpoint),
				zap.Error(results[i].err),
			)
			discovered[endpoint] = []domain.ToolDescriptor{}
			continue
		}
		discovered[endpoint] = c.replaceEndpointLocked(endpoint, results[i].tools)
	}
	c.lastSweep = c.now()
	c.mu.Unlock()

	return discovered, nil
}

// replaceEndpointLocked rebuilds one endpoint's catalog entries from a
// successful sweep, preserving usage statistics for keys that persist.
func (c *Catalog) replaceEndpointLocked(endpoint string, raw []domain.RawTool) []domain.ToolDescriptor {
	priors := make(map[string]*domain.ToolDescriptor)
	for key, tool := range c.tools {
		if tool.Endpoint == endpoint {
			priors[key] = tool
			delete(c.tools, key)
		}
	}

	out := make([]domain.ToolDescriptor, 0, len(raw))
	for _, entry := range raw {
		descriptor := c.decorate(endpoint, entry, priors)
		c.tools[descriptor.Key()] = descriptor
		out = append(out, *descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) decorate(endpoint string, raw domain.RawTool, priors map[string]*domain.ToolDescriptor) *domain.ToolDescriptor {
	params := make([]domain.ParameterSpec, 0, len(raw.Parameters))
	for name, typeHint := range raw.Parameters {
		params = append(params, domain.ParameterSpec{Name: name, Type: typeHint})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })

	descriptor := &domain.ToolDescriptor{
		Name:        raw.Name,
		Description: raw.Description,
		Parameters:  params,
		Endpoint:    endpoint,
		Category:    Categorize(raw.Name, raw.Description),
		Tags:        ExtractTags(raw.Name, raw.Description),
	}

	if prior, ok := priors[descriptor.Key()]; ok {
		descriptor.UsageCount = prior.UsageCount
		descriptor.AvgResponseTime = prior.AvgResponseTime
		descriptor.LastUsed = prior.LastUsed
	} else if c.store != nil {
		if record, found, err := c.store.Load(endpoint, raw.Name); err != nil {
			c.logger.Warn("load persisted usage stats failed",
				zap.String("endpoint", endpoint),
				zap.String("tool", raw.Name),
				zap.Error(err),
			)
		} else if found {
			descriptor.UsageCount = record.UsageCount
			descriptor.AvgResponseTime = record.AvgResponseTime
			descriptor.LastUsed = record.LastUsed
		}
	}
	return descriptor
}

// Snapshot groups the current cached tools by endpoint without any
// network I/O.
func (c *Catalog) Snapshot() map[string][]domain.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]domain.ToolDescriptor)
	for _, tool := range c.tools {
		out[tool.Endpoint] = append(out[tool.Endpoint], *tool)
	}
	for endpoint := range out {
		tools := out[endpoint]
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	}
	return out
}

// Tool returns one cached descriptor.
func (c *Catalog) Tool(endpoint, name string) (domain.ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tool, ok := c.tools[endpoint+"\x00"+name]
	if !ok {
		return domain.ToolDescriptor{}, false
	}
	return *tool, true
}

// RecordExecution folds one successful execution into the tool's running
// statistics and writes them through to the optional store.
func (c *Catalog) RecordExecution(endpoint, name string, duration time.Duration) {
	c.mu.Lock()
	tool, ok := c.tools[endpoint+"\x00"+name]
	if !ok {
		c.mu.Unlock()
		return
	}
	tool.UsageCount++
	tool.AvgResponseTime = time.Duration(
		(int64(tool.AvgResponseTime)*(tool.UsageCount-1) + int64(duration)) / tool.UsageCount,
	)
	tool.LastUsed = c.now()
	record := statestore.UsageRecord{
		UsageCount:      tool.UsageCount,
		AvgResponseTime: tool.AvgResponseTime,
		LastUsed:        tool.LastUsed,
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(endpoint, name, record); err != nil {
			c.logger.Warn("persist usage stats failed",
				zap.String("endpoint", endpoint),
				zap.String("tool", name),
				zap.Error(err),
			)
		}
	}
}

// ToolsByCategory returns cached tools with the given category.
func (c *Catalog) ToolsByCategory(category string) []domain.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.ToolDescriptor
	for _, tool := range c.tools {
		if tool.Category == category {
			out = append(out, *tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ToolsByTags returns cached tools matching any of the given tags.
func (c *Catalog) ToolsByTags(tags []string) []domain.ToolDescriptor {
	want := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		want[tag] = struct{}{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.ToolDescriptor
	for _, tool := range c.tools {
		for _, tag := range tool.Tags {
			if _, ok := want[tag]; ok {
				out = append(out, *tool)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Invalidate forces the next DiscoverAll to sweep. Used by config reload.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.lastSweep = time.Time{}
	c.mu.Unlock()
}
