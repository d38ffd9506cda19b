// Package selector ranks catalog tools against free-text requests using
// four weighted signals: semantic similarity, intent match, usage
// preference, and entity alignment. Scoring is deterministic and
// reproducible given the same inputs and history.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolmesh/internal/catalog"
	"toolmesh/internal/domain"
)

// Fixed signal weights. Intent dominates; entity alignment nudges.
const (
	weightSemantic = 0.3
	weightIntent   = 0.4
	weightUsage    = 0.2
	weightEntity   = 0.1

	minConfidence = 0.1
)

// entityAlignments maps an extracted entity type to the parameter names
// that can receive it.
var entityAlignments = map[string][]string{
	EntityFilePath: {"file_path", "path", "filename", "directory_path"},
	EntityURL:      {"url", "web_url", "link"},
	EntityQuery:    {"query", "search_term", "text"},
	EntityMathExpr: {"expression", "formula", "equation"},
	EntityProcess:  {"process_name", "service_name", "name"},
}

type selectionRecord struct {
	text       string
	timestamp  time.Time
	topTool    string
	confidence float64
	entities   map[string][]string
	intents    []IntentScore
}

type Selector struct {
	mu            sync.Mutex
	usageHistory  map[string][]time.Time
	contextMemory []selectionRecord

	catalog *catalog.Catalog
	intents []IntentPattern
	logger  *zap.Logger
	metrics domain.Metrics

	now func() time.Time
}

func New(cat *catalog.Catalog, logger *zap.Logger, metrics domain.Metrics) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Selector{
		usageHistory: make(map[string][]time.Time),
		catalog:      cat,
		intents:      defaultIntentPatterns(),
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// SelectTools ranks every catalog tool against the message and returns the
// top maxTools matches above the confidence cutoff; a non-positive
// maxTools truncates to an empty list. An empty catalog yields an empty
// list, never an error. The top match is appended to the rolling context
// memory feeding future usage-preference scoring, even when truncation
// drops it from the returned slice.
func (s *Selector) SelectTools(ctx context.Context, message string, contextLines []string, maxTools int) ([]domain.ToolMatch, error) {
	byEndpoint, err := s.catalog.DiscoverAll(ctx, false)
	if err != nil {
		return nil, err
	}

	var tools []domain.ToolDescriptor
	for _, endpointTools := range byEndpoint {
		tools = append(tools, endpointTools...)
	}
	if len(tools) == 0 {
		return []domain.ToolMatch{}, nil
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Key() < tools[j].Key() })

	entities := ExtractEntities(message)
	intents := detectIntents(s.intents, message, entities)

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []domain.ToolMatch
	for _, tool := range tools {
		match := s.scoreToolLocked(message, contextLines, tool, entities, intents)
		if match.Confidence > minConfidence {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Tool.Key() < matches[j].Tool.Key()
	})

	if len(matches) > 0 {
		s.rememberLocked(selectionRecord{
			text:       message,
			timestamp:  s.now(),
			topTool:    matches[0].Tool.Name,
			confidence: matches[0].Confidence,
			entities:   entities,
			intents:    intents,
		})
		s.metrics.ObserveSelection(matches[0].Confidence, len(matches))
		s.logger.Debug("tools selected",
			zap.String("top_tool", matches[0].Tool.Name),
			zap.Float64("confidence", matches[0].Confidence),
			zap.Int("candidates", len(matches)),
		)
	}

	if maxTools <= 0 {
		return []domain.ToolMatch{}, nil
	}
	if len(matches) > maxTools {
		matches = matches[:maxTools]
	}
	return matches, nil
}

func (s *Selector) scoreToolLocked(message string, contextLines []string, tool domain.ToolDescriptor, entities map[string][]string, intents []IntentScore) domain.ToolMatch {
	var reasons []string
	confidence := 0.0

	semantic := semanticSimilarity(message, tool)
	confidence += semantic * weightSemantic
	if semantic > 0.3 {
		reasons = append(reasons, fmt.Sprintf("semantic match (%.2f)", semantic))
	}

	intentScore := 0.0
	matchedIntent := ""
	for _, detected := range topIntents(intents, 2) {
		if s.prefersTool(detected.Intent, tool.Name) && detected.Confidence > intentScore {
			intentScore = detected.Confidence
			matchedIntent = detected.Intent
		}
	}
	confidence += intentScore * weightIntent
	if intentScore > 0 {
		reasons = append(reasons, fmt.Sprintf("intent match: %s (%.2f)", matchedIntent, intentScore))
	}

	usage := s.usagePreferenceLocked(tool, contextLines)
	confidence += usage * weightUsage
	if usage > 0.1 {
		reasons = append(reasons, fmt.Sprintf("usage preference (%.2f)", usage))
	}

	entityScore := 0.0
	for _, entityType := range sortedKeys(entities) {
		aligned, ok := entityAlignments[entityType]
		if !ok {
			continue
		}
		for _, param := range aligned {
			if tool.HasParameter(param) {
				entityScore += 0.5
				reasons = append(reasons, fmt.Sprintf("entity alignment: %s", entityType))
				break
			}
		}
	}
	confidence += entityScore * weightEntity

	if confidence > 1 {
		confidence = 1
	}
	return domain.ToolMatch{
		Tool:       tool,
		Confidence: confidence,
		Reasons:    reasons,
		Intent:     matchedIntent,
		Entities:   entities,
	}
}

// usagePreferenceLocked combines recency-bounded usage frequency, overlap
// with past contexts where the tool ranked top, and an inverse-latency
// bonus under the 5-second reference ceiling. Internal weights 0.4/0.4/0.2.
func (s *Selector) usagePreferenceLocked(tool domain.ToolDescriptor, contextLines []string) float64 {
	cutoff := s.now().Add(-time.Duration(domain.UsageWindowDays) * 24 * time.Hour)
	recent := 0
	for _, used := range s.usageHistory[tool.Key()] {
		if used.After(cutoff) {
			recent++
		}
	}
	usageScore := min(float64(recent)/float64(domain.UsageWeeklyCap), 1.0)

	contextScore := 0.0
	if len(contextLines) > 0 && len(s.contextMemory) > 0 {
		currentWords := tokenize(joinLower(contextLines))
		start := max(0, len(s.contextMemory)-domain.ContextLookback)
		for _, record := range s.contextMemory[start:] {
			if record.topTool != tool.Name {
				continue
			}
			pastWords := tokenize(strings.ToLower(record.text))
			if len(pastWords) == 0 || len(currentWords) == 0 {
				continue
			}
			common := 0
			for word := range pastWords {
				if _, ok := currentWords[word]; ok {
					common++
				}
			}
			union := len(pastWords) + len(currentWords) - common
			contextScore += float64(common) / float64(union)
		}
		contextScore = min(contextScore, 1.0)
	}

	performanceScore := 0.0
	if tool.AvgResponseTime > 0 {
		ceiling := float64(domain.LatencyCeilingSec) * float64(time.Second)
		performanceScore = max(0, (ceiling-float64(tool.AvgResponseTime))/ceiling)
	}

	return usageScore*0.4 + contextScore*0.4 + performanceScore*0.2
}

// RecordToolUsage appends a usage timestamp to the bounded rolling log
// feeding the usage-frequency signal.
func (s *Selector) RecordToolUsage(endpoint, tool string) {
	key := endpoint + "\x00" + tool
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.usageHistory[key], s.now())
	if len(history) > domain.MaxUsageHistory {
		history = history[len(history)-domain.MaxUsageHistory:]
	}
	s.usageHistory[key] = history
}

// Recommendations returns the tools most frequently top-ranked over the
// last 20 selections.
func (s *Selector) Recommendations(limit int) []domain.ToolRecommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contextMemory) == 0 {
		return nil
	}

	start := max(0, len(s.contextMemory)-20)
	counts := make(map[string]int)
	for _, record := range s.contextMemory[start:] {
		counts[record.topTool]++
	}

	var recommendations []domain.ToolRecommendation
	for _, entry := range topCounts(counts, limit) {
		recommendations = append(recommendations, domain.ToolRecommendation{
			ToolName: entry.Name,
			Reason:   fmt.Sprintf("frequently used (%d times recently)", entry.Count),
			Type:     "frequent_usage",
		})
	}
	return recommendations
}

// Statistics summarizes the last 50 selections.
func (s *Selector) Statistics() domain.SelectionStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contextMemory) == 0 {
		return domain.SelectionStatistics{}
	}

	start := max(0, len(s.contextMemory)-50)
	recent := s.contextMemory[start:]

	totalConfidence := 0.0
	toolCounts := make(map[string]int)
	intentCounts := make(map[string]int)
	entityCounts := make(map[string]int)
	for _, record := range recent {
		totalConfidence += record.confidence
		toolCounts[record.topTool]++
		for _, intent := range record.intents {
			intentCounts[intent.Intent]++
		}
		for entityType := range record.entities {
			entityCounts[entityType]++
		}
	}

	return domain.SelectionStatistics{
		TotalSelections: len(recent),
		AvgConfidence:   totalConfidence / float64(len(recent)),
		TopIntents:      topCounts(intentCounts, 5),
		TopTools:        topCounts(toolCounts, 10),
		EntityTypes:     topCounts(entityCounts, 5),
	}
}

func (s *Selector) rememberLocked(record selectionRecord) {
	s.contextMemory = append(s.contextMemory, record)
	if len(s.contextMemory) > domain.MaxContextMemory {
		s.contextMemory = s.contextMemory[len(s.contextMemory)-domain.MaxContextMemory:]
	}
}

func (s *Selector) prefersTool(intent, toolName string) bool {
	for _, pattern := range s.intents {
		if pattern.Intent != intent {
			continue
		}
		for _, preferred := range pattern.PreferredTools {
			if preferred == toolName {
				return true
			}
		}
		return false
	}
	return false
}

func topIntents(intents []IntentScore, n int) []IntentScore {
	if len(intents) > n {
		return intents[:n]
	}
	return intents
}

func topCounts(counts map[string]int, n int) []domain.NameCount {
	out := make([]domain.NameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, domain.NameCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func joinLower(lines []string) string {
	return strings.ToLower(strings.Join(lines, " "))
}
