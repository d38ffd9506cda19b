package domain

const (
	DefaultDiscoveryTimeoutSeconds   = 5
	DefaultExecutionTimeoutSeconds   = 15
	DefaultHealthCheckTimeoutSeconds = 5
	DefaultHealthIntervalSeconds     = 30
	DefaultCacheTTLSeconds           = 300
	DefaultMaxRetries                = 3
	DefaultParallelLimit             = 10
	DefaultRetryBackoffBaseMillis    = 1000

	DefaultObservabilityListenAddress = "127.0.0.1:9464"

	// Selector bounds.
	MaxContextMemory  = 100
	MaxUsageHistory   = 50
	ContextLookback   = 10
	UsageWindowDays   = 7
	UsageWeeklyCap    = 10
	LatencyCeilingSec = 5
)

// Derived tool categories, in rule order. Earlier categories win ties.
const (
	CategoryFileOperations   = "file_operations"
	CategoryWebOperations    = "web_operations"
	CategorySystemOperations = "system_operations"
	CategoryComputation      = "computation"
	CategoryGeneral          = "general"
)
