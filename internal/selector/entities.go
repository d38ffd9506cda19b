package selector

import (
	"regexp"
	"strings"
)

// Entity types extracted from free-text requests.
const (
	EntityFilePath = "file_path"
	EntityURL      = "url"
	EntityNumber   = "number"
	EntityMathExpr = "math_expression"
	EntityQuery    = "search_query"
	EntityProcess  = "process_name"
)

type entityRule struct {
	entityType string
	patterns   []*regexp.Regexp
}

// entityRules is an ordered rule table. Within a type the patterns are
// ordered by specificity and the first pattern that matches wins, so
// "Calculate 2 + 2 * 3" yields the full captured expression rather than
// the first bare operator pair.
var entityRules = []entityRule{
	{EntityFilePath, []*regexp.Regexp{
		regexp.MustCompile(`(?i)["']([^"']*\.[a-zA-Z]{2,4})["']`),
		regexp.MustCompile(`(?i)\b([a-zA-Z]:\\[^\s]+)`),
		regexp.MustCompile(`(?i)(?:^|\s)(/[^\s]+)`),
		regexp.MustCompile(`(?i)\b([\w-]+\.[a-zA-Z]{2,4})\b`),
	}},
	{EntityURL, []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?://[^\s]+`),
		regexp.MustCompile(`(?i)www\.[^\s]+`),
		regexp.MustCompile(`(?i)\b[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
	}},
	{EntityNumber, []*regexp.Regexp{
		regexp.MustCompile(`\b\d+\.?\d*\b`),
		regexp.MustCompile(`\b\d+/\d+\b`),
		regexp.MustCompile(`\b\d+%`),
	}},
	{EntityMathExpr, []*regexp.Regexp{
		regexp.MustCompile(`(?i)calculate\s+([^.!?]+)`),
		regexp.MustCompile(`(?i)what\s+is\s+([0-9+\-*/.()\s]+)`),
		regexp.MustCompile(`\d+(?:\s*[-+*/]\s*\d+)+`),
	}},
	{EntityQuery, []*regexp.Regexp{
		regexp.MustCompile(`(?i)search\s+for\s+["']([^"']+)["']`),
		regexp.MustCompile(`(?i)find\s+information\s+about\s+(.+)`),
		regexp.MustCompile(`(?i)look\s+up\s+(.+)`),
	}},
	{EntityProcess, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b[a-zA-Z][a-zA-Z0-9_-]*\.exe\b`),
		regexp.MustCompile(`(?i)process\s+["']([^"']+)["']`),
		regexp.MustCompile(`(?i)service\s+["']([^"']+)["']`),
	}},
}

// ExtractEntities applies the entity rule tables to a message. A message
// may produce multiple entity types simultaneously; within a type the
// first matching pattern supplies the values, trimmed and de-duplicated.
func ExtractEntities(text string) map[string][]string {
	entities := make(map[string][]string)
	for _, rule := range entityRules {
		for _, pattern := range rule.patterns {
			values := captureAll(pattern, text)
			if len(values) > 0 {
				entities[rule.entityType] = values
				break
			}
		}
	}
	return entities
}

func captureAll(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var values []string
	for _, match := range matches {
		value := match[0]
		if len(match) > 1 && match[1] != "" {
			value = match[1]
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}
	return values
}
