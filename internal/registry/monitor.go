package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

// Monitor probes remote servers. Probes fetch the tool list as the health
// signal: a server that can enumerate its tools is a server that can run
// them. Probes run outside the shared call limiter so the catalog can
// always learn server health before committing discovery slots.
type Monitor struct {
	registry  *Registry
	transport domain.ToolTransport
	timeout   time.Duration
	logger    *zap.Logger
	metrics   domain.Metrics
}

func NewMonitor(registry *Registry, transport domain.ToolTransport, timeout time.Duration, logger *zap.Logger, metrics domain.Metrics) *Monitor {
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultHealthCheckTimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Monitor{
		registry:  registry,
		transport: transport,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckHealth probes one endpoint and updates its registry record.
func (m *Monitor) CheckHealth(ctx context.Context, endpoint string) domain.ServerHealth {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	tools, err := m.transport.ListTools(probeCtx, endpoint)
	elapsed := time.Since(start)
	m.metrics.ObserveHealthCheck(endpoint, elapsed, err)

	if err != nil {
		m.registry.MarkUnhealthy(endpoint, elapsed, err)
		m.logger.Warn("health check failed",
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		names := make([]string, 0, len(tools))
		for _, tool := range tools {
			names = append(names, tool.Name)
		}
		m.registry.MarkHealthy(endpoint, elapsed, names)
	}

	health, _ := m.registry.Health(endpoint)
	return health
}

// CheckAllHealth probes every active endpoint concurrently and waits for
// all probes to finish regardless of individual outcome. One hung or
// failing endpoint must never block or invalidate another's result.
func (m *Monitor) CheckAllHealth(ctx context.Context) map[string]domain.ServerHealth {
	endpoints := m.registry.ActiveEndpoints()

	var wg sync.WaitGroup
	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()
			m.CheckHealth(ctx, endpoint)
		}(endpoint)
	}
	wg.Wait()

	return m.registry.HealthMap()
}

// Run re-probes all endpoints on a fixed interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Duration(domain.DefaultHealthIntervalSeconds) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAllHealth(ctx)
		}
	}
}
