package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

// SchemaCache holds resolved parameter schemas per (endpoint, tool).
// Schemas are fetched lazily and cached unconditionally: they are assumed
// stable for the process lifetime.
type SchemaCache struct {
	mu        sync.RWMutex
	resolved  map[string]*jsonschema.Resolved
	transport domain.ToolTransport
	timeout   time.Duration
	logger    *zap.Logger
}

func NewSchemaCache(transport domain.ToolTransport, timeout time.Duration, logger *zap.Logger) *SchemaCache {
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultDiscoveryTimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaCache{
		resolved:  make(map[string]*jsonschema.Resolved),
		transport: transport,
		timeout:   timeout,
		logger:    logger,
	}
}

// Get returns the cached schema for (endpoint, tool), fetching it from the
// remote schema contract on first use.
func (s *SchemaCache) Get(ctx context.Context, endpoint, tool string) (*jsonschema.Resolved, error) {
	key := endpoint + "\x00" + tool

	s.mu.RLock()
	cached, ok := s.resolved[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	schema, err := s.transport.FetchSchema(fetchCtx, endpoint, tool)
	if err != nil {
		return nil, fmt.Errorf("get schema for %s: %w", tool, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema for %s: %w", tool, err)
	}

	s.mu.Lock()
	s.resolved[key] = resolved
	s.mu.Unlock()

	s.logger.Debug("schema cached",
		zap.String("endpoint", endpoint),
		zap.String("tool", tool),
	)
	return resolved, nil
}
