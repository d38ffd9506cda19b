package domain

import "time"

// Metrics receives engine observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveHealthCheck(endpoint string, duration time.Duration, err error)
	ObserveDiscovery(endpoint string, duration time.Duration, toolCount int, err error)
	ObserveExecution(endpoint, tool string, duration time.Duration, attempts int, err error)
	ObserveExecutionCacheHit(endpoint, tool string)
	ObserveSelection(confidence float64, candidates int)
	IncInflight()
	DecInflight()
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveHealthCheck(string, time.Duration, error)            {}
func (NopMetrics) ObserveDiscovery(string, time.Duration, int, error)         {}
func (NopMetrics) ObserveExecution(string, string, time.Duration, int, error) {}
func (NopMetrics) ObserveExecutionCacheHit(string, string)                    {}
func (NopMetrics) ObserveSelection(float64, int)                              {}
func (NopMetrics) IncInflight()                                               {}
func (NopMetrics) DecInflight()                                               {}

var _ Metrics = NopMetrics{}
