// Package app assembles the engine from its parts and exposes the
// operations the surrounding application calls.
package app

import (
	"context"

	"go.uber.org/zap"

	"toolmesh/internal/catalog"
	"toolmesh/internal/dispatch"
	"toolmesh/internal/domain"
	"toolmesh/internal/infra/config"
	"toolmesh/internal/infra/limiter"
	"toolmesh/internal/infra/statestore"
	"toolmesh/internal/infra/toolclient"
	"toolmesh/internal/registry"
	"toolmesh/internal/selector"
)

// Engine is the assembled orchestrator. All methods are safe for
// concurrent use.
type Engine struct {
	registry   *registry.Registry
	monitor    *registry.Monitor
	catalog    *catalog.Catalog
	dispatcher *dispatch.Dispatcher
	selector   *selector.Selector
	store      *statestore.Store
	logger     *zap.Logger
}

// NewEngine wires the engine from a resolved configuration. The optional
// transport override is used by tests; pass nil for the HTTP client.
func NewEngine(cfg config.Config, transport domain.ToolTransport, logger *zap.Logger, metrics domain.Metrics) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	if transport == nil {
		transport = toolclient.New(toolclient.WithLogger(logger.Named("toolclient")))
	}

	reg, err := registry.New(cfg.Servers)
	if err != nil {
		return nil, err
	}

	var store *statestore.Store
	if cfg.StatePath != "" {
		store, err = statestore.Open(cfg.StatePath)
		if err != nil {
			return nil, err
		}
	}

	lim := limiter.New(cfg.ParallelLimit, metrics)
	monitor := registry.NewMonitor(reg, transport, cfg.HealthCheckTimeout, logger.Named("monitor"), metrics)

	cat := catalog.New(catalog.Options{
		Registry:         reg,
		Monitor:          monitor,
		Transport:        transport,
		Limiter:          lim,
		DiscoveryTimeout: cfg.DiscoveryTimeout,
		CacheTTL:         cfg.CacheTTL,
		Store:            store,
		Logger:           logger.Named("catalog"),
		Metrics:          metrics,
	})

	schemas := dispatch.NewSchemaCache(transport, cfg.DiscoveryTimeout, logger.Named("schemas"))
	dispatcher := dispatch.New(dispatch.Options{
		Schemas:          schemas,
		Transport:        transport,
		Limiter:          lim,
		Catalog:          cat,
		ExecutionTimeout: cfg.ExecutionTimeout,
		CacheTTL:         cfg.CacheTTL,
		MaxRetries:       cfg.MaxRetries,
		BackoffBase:      cfg.RetryBackoffBase,
		Logger:           logger.Named("dispatch"),
		Metrics:          metrics,
	})

	return &Engine{
		registry:   reg,
		monitor:    monitor,
		catalog:    cat,
		dispatcher: dispatcher,
		selector:   selector.New(cat, logger.Named("selector"), metrics),
		store:      store,
		logger:     logger,
	}, nil
}

// DiscoverAll returns the tool catalog grouped by endpoint, sweeping the
// fleet when the cached snapshot is stale or forceRefresh is set.
func (e *Engine) DiscoverAll(ctx context.Context, forceRefresh bool) (map[string][]domain.ToolDescriptor, error) {
	return e.catalog.DiscoverAll(ctx, forceRefresh)
}

// SelectTools ranks catalog tools against a free-text message.
func (e *Engine) SelectTools(ctx context.Context, message string, contextLines []string, maxTools int) ([]domain.ToolMatch, error) {
	return e.selector.SelectTools(ctx, message, contextLines, maxTools)
}

// ExecuteWithRetry runs one tool call with validation, retry, and result
// caching. Pass a negative maxRetries for the configured default.
func (e *Engine) ExecuteWithRetry(ctx context.Context, endpoint, tool string, params map[string]any, maxRetries int) domain.ExecutionResult {
	result := e.dispatcher.ExecuteWithRetry(ctx, endpoint, tool, params, maxRetries)
	if result.Success {
		e.selector.RecordToolUsage(endpoint, tool)
	}
	return result
}

// ExecuteMultiple runs a batch concurrently, results in input order.
func (e *Engine) ExecuteMultiple(ctx context.Context, requests []dispatch.Request) []domain.ExecutionResult {
	results := e.dispatcher.ExecuteMultiple(ctx, requests)
	for _, result := range results {
		if result.Success {
			e.selector.RecordToolUsage(result.Endpoint, result.Tool)
		}
	}
	return results
}

// CheckAllHealth probes every active endpoint and returns the health map.
func (e *Engine) CheckAllHealth(ctx context.Context) map[string]domain.ServerHealth {
	return e.monitor.CheckAllHealth(ctx)
}

// HealthMap returns the current health view without probing.
func (e *Engine) HealthMap() map[string]domain.ServerHealth {
	return e.registry.HealthMap()
}

// ToolsByCategory returns cached tools with the given category.
func (e *Engine) ToolsByCategory(category string) []domain.ToolDescriptor {
	return e.catalog.ToolsByCategory(category)
}

// ToolsByTags returns cached tools matching any of the given tags.
func (e *Engine) ToolsByTags(tags []string) []domain.ToolDescriptor {
	return e.catalog.ToolsByTags(tags)
}

// ServerStatistics aggregates health and catalog contents.
func (e *Engine) ServerStatistics() domain.ServerStatistics {
	return e.catalog.Statistics()
}

// SelectionStatistics summarizes recent selector behavior.
func (e *Engine) SelectionStatistics() domain.SelectionStatistics {
	return e.selector.Statistics()
}

// ToolRecommendations suggests tools from recent selection history.
func (e *Engine) ToolRecommendations(limit int) []domain.ToolRecommendation {
	return e.selector.Recommendations(limit)
}

// ApplyConfig swaps in a reloaded endpoint set and invalidates the
// catalog so the next discovery sweeps the new fleet.
func (e *Engine) ApplyConfig(cfg config.Config) error {
	if err := e.registry.SetEndpoints(cfg.Servers); err != nil {
		return err
	}
	e.catalog.Invalidate()
	e.logger.Info("endpoint set updated", zap.Int("servers", len(cfg.Servers)))
	return nil
}

// Close releases the persistent state store, if any.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}
