package catalog

import (
	"strings"

	"toolmesh/internal/domain"
)

// categoryRules is ordered: the first rule whose keywords hit the tool's
// name or description wins. A tool mentioning both files and the web is a
// file tool.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{domain.CategoryFileOperations, []string{"file", "read", "write", "directory", "folder"}},
	{domain.CategoryWebOperations, []string{"web", "search", "url", "http", "internet"}},
	{domain.CategorySystemOperations, []string{"system", "process", "cpu", "memory", "disk"}},
	{domain.CategoryComputation, []string{"calculate", "math", "compute", "number"}},
}

// Categorize derives a single category label from a tool's name and
// description. Pure function: identical inputs always yield the same
// category. Keyword matching is substring-based on the lowercased text.
func Categorize(name, description string) string {
	nameLower := strings.ToLower(name)
	descLower := strings.ToLower(description)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(nameLower, keyword) || strings.Contains(descLower, keyword) {
				return rule.category
			}
		}
	}
	return domain.CategoryGeneral
}
