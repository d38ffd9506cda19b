package domain

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// ServerHealth tracks the reachability of a single remote tool server.
// Owned by the registry; only the health monitor mutates it.
type ServerHealth struct {
	URL          string
	Healthy      bool
	LastCheck    time.Time
	ResponseTime time.Duration
	ErrorCount   int
	LastError    string
	Capabilities []string
}

// ParameterSpec describes one declared tool parameter.
type ParameterSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// ToolDescriptor is a discovered tool enriched with derived metadata and
// running usage statistics. Uniquely keyed by (Endpoint, Name) within a
// catalog snapshot.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  []ParameterSpec
	Endpoint    string
	Category    string
	Tags        []string

	UsageCount      int64
	AvgResponseTime time.Duration
	LastUsed        time.Time
}

// HasParameter reports whether the tool declares a parameter with the
// given name.
func (t ToolDescriptor) HasParameter(name string) bool {
	for _, p := range t.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Key returns the catalog key for the descriptor.
func (t ToolDescriptor) Key() string {
	return t.Endpoint + "\x00" + t.Name
}

// FailureKind distinguishes execution failures so callers can branch on
// retryability without inspecting error text.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureValidation FailureKind = "validation"
	FailureTransient  FailureKind = "transient"
)

// ExecutionResult is the outcome of one dispatched tool call. Failures are
// ordinary values, never panics.
type ExecutionResult struct {
	ID            string
	Tool          string
	Endpoint      string
	Parameters    map[string]any
	Result        any
	Success       bool
	Failure       FailureKind
	Attempts      int
	ExecutionTime time.Duration
	Timestamp     time.Time
	Error         string
}

// ToolMatch is a ranked selection candidate with its scoring rationale.
type ToolMatch struct {
	Tool       ToolDescriptor
	Confidence float64
	Reasons    []string
	Intent     string
	Entities   map[string][]string
}

// ToolRecommendation suggests a tool based on recent usage patterns.
type ToolRecommendation struct {
	ToolName string
	Reason   string
	Type     string
}

// NameCount pairs a label with an occurrence count.
type NameCount struct {
	Name  string
	Count int
}

// SelectionStatistics summarizes recent selector behavior.
type SelectionStatistics struct {
	TotalSelections int
	AvgConfidence   float64
	TopIntents      []NameCount
	TopTools        []NameCount
	EntityTypes     []NameCount
}

// ToolUsageRank and ToolLatencyRank are leaderboard entries in the server
// statistics report.
type ToolUsageRank struct {
	Name       string
	Endpoint   string
	UsageCount int64
}

type ToolLatencyRank struct {
	Name            string
	Endpoint        string
	AvgResponseTime time.Duration
}

// ServerStatistics is the aggregate view over registry health and catalog
// contents exposed to the surrounding application.
type ServerStatistics struct {
	Servers map[string]ServerHealth
	Tools   ToolStatistics
}

type ToolStatistics struct {
	TotalCount      int
	ByCategory      map[string]int
	ByServer        map[string]int
	MostUsed        []ToolUsageRank
	FastestResponse []ToolLatencyRank
}

// RawTool is a tool entry as advertised by a remote server's discovery
// endpoint, before category/tag decoration.
type RawTool struct {
	Name        string
	Description string
	Parameters  map[string]string
}

// ToolTransport is the wire contract every remote tool server implements.
// Implementations must honor context deadlines; the engine treats servers
// purely as black boxes behind this interface.
type ToolTransport interface {
	ListTools(ctx context.Context, endpoint string) ([]RawTool, error)
	FetchSchema(ctx context.Context, endpoint, tool string) (*jsonschema.Schema, error)
	Execute(ctx context.Context, endpoint, tool string, params map[string]any) (any, error)
}
