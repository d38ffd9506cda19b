package selector

import (
	"regexp"
	"strings"

	"toolmesh/internal/domain"
)

// semanticKeywords groups words that gravitate around each tool category.
// Group keys deliberately match the derived category labels so a tool in
// the right category earns the in-category multiplier.
var semanticKeywords = map[string][]string{
	domain.CategoryFileOperations: {
		"file", "document", "text", "data", "content", "folder", "directory",
		"path", "filename", "extension", "read", "write", "save", "open",
		"create", "delete", "move", "copy", "edit",
	},
	domain.CategoryWebOperations: {
		"web", "internet", "online", "url", "website", "page", "link", "http",
		"search", "google", "query", "fetch", "download", "browse", "scrape",
	},
	domain.CategorySystemOperations: {
		"system", "computer", "server", "machine", "hardware", "software",
		"process", "service", "memory", "cpu", "disk", "network", "performance",
		"status", "info", "monitor", "check",
	},
	domain.CategoryComputation: {
		"calculate", "compute", "math", "number", "formula", "equation",
		"arithmetic", "solve", "result", "answer", "total", "sum",
	},
}

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// semanticSimilarity scores how well a message matches a tool's own
// vocabulary: Jaccard overlap of word sets plus a bonus per shared
// semantic keyword group, multiplied by 1.5 when the tool's category is
// that group. Capped at 1.
func semanticSimilarity(message string, tool domain.ToolDescriptor) float64 {
	messageLower := strings.ToLower(message)
	toolText := strings.ToLower(tool.Name + " " + tool.Description)

	score := 0.0

	messageWords := tokenize(messageLower)
	toolWords := tokenize(toolText)
	if len(messageWords) > 0 && len(toolWords) > 0 {
		common := 0
		for word := range messageWords {
			if _, ok := toolWords[word]; ok {
				common++
			}
		}
		union := len(messageWords) + len(toolWords) - common
		score += float64(common) / float64(union)
	}

	for group, keywords := range semanticKeywords {
		messageHits := countKeywordHits(messageLower, keywords)
		toolHits := countKeywordHits(toolText, keywords)
		if messageHits == 0 || toolHits == 0 {
			continue
		}
		groupScore := float64(min(messageHits, toolHits)) / float64(max(messageHits, toolHits))
		if tool.Category == group {
			groupScore *= 1.5
		}
		score += groupScore * 0.3
	}

	if score > 1 {
		score = 1
	}
	return score
}

func tokenize(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(text, -1) {
		words[word] = struct{}{}
	}
	return words
}

func countKeywordHits(text string, keywords []string) int {
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			hits++
		}
	}
	return hits
}
