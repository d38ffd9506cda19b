// Package registry tracks configured remote tool servers and their health.
package registry

import (
	"sort"
	"sync"
	"time"

	"toolmesh/internal/domain"
)

// Endpoint is one configured remote server.
type Endpoint struct {
	Name    string
	URL     string
	Enabled bool
}

// Registry owns the health map. Health entries are mutated only through
// the mark methods, which the monitor calls.
type Registry struct {
	mu        sync.RWMutex
	endpoints []Endpoint
	health    map[string]*domain.ServerHealth
}

// New builds a registry from the configured endpoints. An empty endpoint
// list is the one fatal configuration error.
func New(endpoints []Endpoint) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, domain.ErrNoServersConfigured
	}
	r := &Registry{health: make(map[string]*domain.ServerHealth)}
	r.setEndpointsLocked(endpoints)
	return r, nil
}

// SetEndpoints replaces the configured endpoint set, preserving health
// state for URLs that persist. Used by config reload.
func (r *Registry) SetEndpoints(endpoints []Endpoint) error {
	if len(endpoints) == 0 {
		return domain.ErrNoServersConfigured
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setEndpointsLocked(endpoints)
	return nil
}

func (r *Registry) setEndpointsLocked(endpoints []Endpoint) {
	r.endpoints = make([]Endpoint, len(endpoints))
	copy(r.endpoints, endpoints)

	keep := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		keep[ep.URL] = struct{}{}
		if _, ok := r.health[ep.URL]; !ok {
			// New servers start optimistic; the first probe settles it.
			r.health[ep.URL] = &domain.ServerHealth{
				URL:       ep.URL,
				Healthy:   true,
				LastCheck: time.Now(),
			}
		}
	}
	for url := range r.health {
		if _, ok := keep[url]; !ok {
			delete(r.health, url)
		}
	}
}

// ActiveEndpoints returns enabled endpoint URLs in configuration order.
func (r *Registry) ActiveEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	urls := make([]string, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		if ep.Enabled {
			urls = append(urls, ep.URL)
		}
	}
	return urls
}

// Health returns a copy of one endpoint's health record.
func (r *Registry) Health(url string) (domain.ServerHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[url]
	if !ok {
		return domain.ServerHealth{}, false
	}
	return cloneHealth(h), true
}

// HealthMap returns a copy of the full health map.
func (r *Registry) HealthMap() map[string]domain.ServerHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.ServerHealth, len(r.health))
	for url, h := range r.health {
		out[url] = cloneHealth(h)
	}
	return out
}

// HealthyEndpoints returns active endpoints currently marked healthy,
// sorted for deterministic fan-out order.
func (r *Registry) HealthyEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var urls []string
	for _, ep := range r.endpoints {
		if !ep.Enabled {
			continue
		}
		if h, ok := r.health[ep.URL]; ok && h.Healthy {
			urls = append(urls, ep.URL)
		}
	}
	sort.Strings(urls)
	return urls
}

// MarkHealthy records a successful probe. The error count decays by one
// per success rather than resetting, so recent flakiness stays visible.
func (r *Registry) MarkHealthy(url string, responseTime time.Duration, capabilities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.health[url]
	if !ok {
		return
	}
	h.Healthy = true
	h.LastCheck = time.Now()
	h.ResponseTime = responseTime
	if h.ErrorCount > 0 {
		h.ErrorCount--
	}
	h.LastError = ""
	h.Capabilities = append([]string(nil), capabilities...)
}

// MarkUnhealthy records a failed probe.
func (r *Registry) MarkUnhealthy(url string, responseTime time.Duration, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.health[url]
	if !ok {
		return
	}
	h.Healthy = false
	h.LastCheck = time.Now()
	h.ResponseTime = responseTime
	h.ErrorCount++
	if cause != nil {
		h.LastError = cause.Error()
	}
}

func cloneHealth(h *domain.ServerHealth) domain.ServerHealth {
	out := *h
	out.Capabilities = append([]string(nil), h.Capabilities...)
	return out
}
