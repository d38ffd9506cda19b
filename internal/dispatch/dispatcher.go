// Package dispatch executes tool calls with parameter validation, bounded
// concurrency, retry with exponential backoff, and a short-lived result
// cache. All failures are ordinary result values.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"toolmesh/internal/catalog"
	"toolmesh/internal/domain"
	"toolmesh/internal/infra/hashutil"
	"toolmesh/internal/infra/limiter"
)

// Request is one entry in an ExecuteMultiple batch.
type Request struct {
	Endpoint   string
	Tool       string
	Parameters map[string]any
}

type cachedResult struct {
	result   domain.ExecutionResult
	storedAt time.Time
}

type Options struct {
	Schemas          *SchemaCache
	Transport        domain.ToolTransport
	Limiter          *limiter.Limiter
	Catalog          *catalog.Catalog
	ExecutionTimeout time.Duration
	CacheTTL         time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	Logger           *zap.Logger
	Metrics          domain.Metrics
}

type Dispatcher struct {
	schemas     *SchemaCache
	transport   domain.ToolTransport
	limiter     *limiter.Limiter
	catalog     *catalog.Catalog
	execTimeout time.Duration
	ttl         time.Duration
	maxRetries  int
	backoffBase time.Duration
	logger      *zap.Logger
	metrics     domain.Metrics

	mu    sync.Mutex
	cache map[string]cachedResult

	now func() time.Time
}

func New(opts Options) *Dispatcher {
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = time.Duration(domain.DefaultExecutionTimeoutSeconds) * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Duration(domain.DefaultCacheTTLSeconds) * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = domain.DefaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Duration(domain.DefaultRetryBackoffBaseMillis) * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = domain.NopMetrics{}
	}
	return &Dispatcher{
		schemas:     opts.Schemas,
		transport:   opts.Transport,
		limiter:     opts.Limiter,
		catalog:     opts.Catalog,
		execTimeout: opts.ExecutionTimeout,
		ttl:         opts.CacheTTL,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		cache:       make(map[string]cachedResult),
		now:         time.Now,
	}
}

// ExecuteWithRetry runs one tool call. A fingerprint cache hit within the
// TTL returns the stored result with zero network attempts. A parameter
// validation failure returns immediately and is never retried. Transient
// failures retry up to maxRetries additional attempts with exponential
// backoff; pass a negative maxRetries for the configured default.
func (d *Dispatcher) ExecuteWithRetry(ctx context.Context, endpoint, tool string, params map[string]any, maxRetries int) domain.ExecutionResult {
	if maxRetries < 0 {
		maxRetries = d.maxRetries
	}

	fingerprint := hashutil.ExecutionFingerprint(d.logger, endpoint, tool, params)
	if cached, ok := d.lookupCache(fingerprint); ok {
		d.metrics.ObserveExecutionCacheHit(endpoint, tool)
		return cached
	}

	if failure, invalid := d.validateParams(ctx, endpoint, tool, params); invalid {
		return failure
	}

	var lastErr error
	attempts := 0
	start := d.now()
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := d.limiter.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		attemptStart := d.now()
		execCtx, cancel := context.WithTimeout(ctx, d.execTimeout)
		payload, err := d.transport.Execute(execCtx, endpoint, tool, params)
		cancel()
		d.limiter.Release()
		attempts++

		if err == nil {
			elapsed := d.now().Sub(attemptStart)
			d.catalog.RecordExecution(endpoint, tool, elapsed)
			d.metrics.ObserveExecution(endpoint, tool, elapsed, attempts, nil)

			result := domain.ExecutionResult{
				ID:            uuid.NewString(),
				Tool:          tool,
				Endpoint:      endpoint,
				Parameters:    params,
				Result:        payload,
				Success:       true,
				Attempts:      attempts,
				ExecutionTime: elapsed,
				Timestamp:     d.now(),
			}
			d.storeCache(fingerprint, result)
			return result
		}

		lastErr = err
		d.logger.Warn("tool execution attempt failed",
			zap.String("endpoint", endpoint),
			zap.String("tool", tool),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		if attempt < maxRetries {
			if err := d.backoff(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}
	}

	elapsed := d.now().Sub(start)
	d.metrics.ObserveExecution(endpoint, tool, elapsed, attempts, lastErr)
	d.logger.Error("tool execution failed",
		zap.String("endpoint", endpoint),
		zap.String("tool", tool),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return domain.ExecutionResult{
		ID:            uuid.NewString(),
		Tool:          tool,
		Endpoint:      endpoint,
		Parameters:    params,
		Success:       false,
		Failure:       domain.FailureTransient,
		Attempts:      attempts,
		ExecutionTime: elapsed,
		Timestamp:     d.now(),
		Error:         fmt.Sprintf("failed after %d attempts: %v", attempts, lastErr),
	}
}

// ExecuteMultiple runs all requests concurrently. Each request's outcome
// is isolated: a panic inside one execution path becomes that request's
// failure entry and never prevents siblings from completing. Results are
// returned in input order regardless of completion order.
func (d *Dispatcher) ExecuteMultiple(ctx context.Context, requests []Request) []domain.ExecutionResult {
	results := make([]domain.ExecutionResult, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("execution panicked",
						zap.String("endpoint", req.Endpoint),
						zap.String("tool", req.Tool),
						zap.Any("panic", r),
					)
					results[i] = domain.ExecutionResult{
						ID:         uuid.NewString(),
						Tool:       req.Tool,
						Endpoint:   req.Endpoint,
						Parameters: req.Parameters,
						Success:    false,
						Failure:    domain.FailureTransient,
						Timestamp:  d.now(),
						Error:      fmt.Sprintf("execution failed: %v", r),
					}
				}
			}()
			results[i] = d.ExecuteWithRetry(ctx, req.Endpoint, req.Tool, req.Parameters, -1)
		}(i, req)
	}
	wg.Wait()

	return results
}

// validateParams checks params against the tool's cached schema. An
// unavailable schema is not a validation failure: the call proceeds
// unvalidated and the remote server stays the authority.
func (d *Dispatcher) validateParams(ctx context.Context, endpoint, tool string, params map[string]any) (domain.ExecutionResult, bool) {
	resolved, err := d.schemas.Get(ctx, endpoint, tool)
	if err != nil {
		d.logger.Warn("schema unavailable, skipping validation",
			zap.String("endpoint", endpoint),
			zap.String("tool", tool),
			zap.Error(err),
		)
		return domain.ExecutionResult{}, false
	}

	if err := resolved.Validate(params); err != nil {
		return domain.ExecutionResult{
			ID:         uuid.NewString(),
			Tool:       tool,
			Endpoint:   endpoint,
			Parameters: params,
			Success:    false,
			Failure:    domain.FailureValidation,
			Timestamp:  d.now(),
			Error:      fmt.Sprintf("parameter validation failed: %v", err),
		}, true
	}
	return domain.ExecutionResult{}, false
}

func (d *Dispatcher) lookupCache(fingerprint string) (domain.ExecutionResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.cache[fingerprint]
	if !ok {
		return domain.ExecutionResult{}, false
	}
	if d.now().Sub(entry.storedAt) >= d.ttl {
		// Lazy eviction on the expiry check, no background sweeper.
		delete(d.cache, fingerprint)
		return domain.ExecutionResult{}, false
	}
	return entry.result, true
}

func (d *Dispatcher) storeCache(fingerprint string, result domain.ExecutionResult) {
	d.mu.Lock()
	d.cache[fingerprint] = cachedResult{result: result, storedAt: d.now()}
	d.mu.Unlock()
}

// backoff sleeps 2^attempt times the configured base, honoring ctx.
func (d *Dispatcher) backoff(ctx context.Context, attempt int) error {
	delay := d.backoffBase << attempt
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
