package selector

import (
	"regexp"
	"sort"
)

// IntentPattern is one entry in the ordered intent rule table.
type IntentPattern struct {
	Intent           string
	Patterns         []*regexp.Regexp
	RequiredEntities []string
	PreferredTools   []string
	Weight           float64
}

// IntentScore is a detected intent with its confidence.
type IntentScore struct {
	Intent     string
	Confidence float64
}

func defaultIntentPatterns() []IntentPattern {
	return []IntentPattern{
		{
			Intent: "file_read",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(read|open|show|display|view|cat|get contents?)\b.*\b(file|document)\b`),
				regexp.MustCompile(`(?i)\bwhat'?s in\b.*\bfile\b`),
				regexp.MustCompile(`(?i)\bshow me\b.*\bfile\b`),
			},
			RequiredEntities: []string{EntityFilePath},
			PreferredTools:   []string{"read_file", "file_info"},
			Weight:           1.0,
		},
		{
			Intent: "file_write",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(write|save|create|make)\b.*\b(file|document)\b`),
				regexp.MustCompile(`(?i)\bput\b.*\bin.*\bfile\b`),
				regexp.MustCompile(`(?i)\bstore\b.*\bin\b.*\bfile\b`),
			},
			RequiredEntities: []string{EntityFilePath},
			PreferredTools:   []string{"write_file", "create_directory"},
			Weight:           1.0,
		},
		{
			Intent: "web_search",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(search|find|look up|google|query)\b`),
				regexp.MustCompile(`(?i)\bwhat is\b.*\?`),
				regexp.MustCompile(`(?i)\btell me about\b`),
				regexp.MustCompile(`(?i)\binformation about\b`),
			},
			RequiredEntities: []string{EntityQuery},
			PreferredTools:   []string{"web_search", "search_news"},
			Weight:           1.0,
		},
		{
			Intent: "web_fetch",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(fetch|get|download|retrieve)\b.*\b(url|website|page)\b`),
				regexp.MustCompile(`(?i)\bopen\b.*\bhttp`),
				regexp.MustCompile(`(?i)\bget contents?\b.*\bfrom\b.*\burl\b`),
			},
			RequiredEntities: []string{EntityURL},
			PreferredTools:   []string{"fetch_webpage", "url_info"},
			Weight:           1.0,
		},
		{
			Intent: "calculation",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(calculate|compute|solve|math|arithmetic)\b`),
				regexp.MustCompile(`(?i)\bwhat is\b.*\d+.*[-+*/].*\d+`),
				regexp.MustCompile(`(?i)\bhow much is\b`),
			},
			RequiredEntities: []string{EntityMathExpr, EntityNumber},
			PreferredTools:   []string{"calculator"},
			Weight:           1.0,
		},
		{
			Intent: "system_info",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(system|computer|machine|server)\b.*\b(info|information|status|stats)\b`),
				regexp.MustCompile(`(?i)\bhow much\b.*(memory|ram|disk|cpu)\b`),
				regexp.MustCompile(`(?i)\bwhat'?s\b.*(running|processes|system)\b`),
			},
			RequiredEntities: nil,
			PreferredTools:   []string{"system_info", "system_metrics", "memory_info"},
			Weight:           1.0,
		},
		{
			Intent: "process_management",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(kill|stop|start|restart)\b.*\b(process|service)\b`),
				regexp.MustCompile(`(?i)\blist\b.*\b(processes|running)\b`),
				regexp.MustCompile(`(?i)\bis\b.*\brunning\b`),
			},
			RequiredEntities: []string{EntityProcess},
			PreferredTools:   []string{"process_list", "check_service"},
			Weight:           1.0,
		},
		{
			Intent: "file_search",
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\bfind\b.*\bfiles?\b`),
				regexp.MustCompile(`(?i)\bsearch\b.*\bfor\b.*\bfiles?\b`),
				regexp.MustCompile(`(?i)\blist\b.*\bfiles?\b.*\bin\b`),
			},
			RequiredEntities: []string{EntityFilePath},
			PreferredTools:   []string{"search_files", "list_directory"},
			Weight:           1.0,
		},
	}
}

// detectIntents evaluates the ordered intent table against a message. An
// intent qualifies when at least one of its patterns matches; confidence
// starts at 0.6, gains 0.1 per additional matching pattern and 0.3 when
// every required entity type was extracted, then scales by the pattern
// weight and clamps to [0,1]. Results are sorted by confidence, table
// order breaking ties.
func detectIntents(patterns []IntentPattern, text string, entities map[string][]string) []IntentScore {
	var scores []IntentScore
	for _, pattern := range patterns {
		matched := 0
		for _, re := range pattern.Patterns {
			if re.MatchString(text) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}

		confidence := 0.6 + 0.1*float64(matched-1)
		if hasAllEntities(entities, pattern.RequiredEntities) {
			confidence += 0.3
		}
		confidence *= pattern.Weight
		if confidence > 1 {
			confidence = 1
		}
		scores = append(scores, IntentScore{Intent: pattern.Intent, Confidence: confidence})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Confidence > scores[j].Confidence
	})
	return scores
}

func hasAllEntities(entities map[string][]string, required []string) bool {
	for _, entityType := range required {
		if len(entities[entityType]) == 0 {
			return false
		}
	}
	return true
}
