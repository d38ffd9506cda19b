package catalog

import (
	"sort"
	"strings"
)

type tagRule struct {
	tag      string
	keywords []string
}

// baseTagRules are independent boolean triggers; any keyword hit adds the
// tag. Matching is substring-based, so "ai" fires on "email" too — that is
// the upstream contract, not an accident.
var baseTagRules = []tagRule{
	{"async", []string{"async"}},
	{"data", []string{"data"}},
	{"secure", []string{"secure"}},
	{"file", []string{"file"}},
	{"realtime", []string{"realtime", "real-time"}},
	{"monitor", []string{"monitor"}},
	{"ai", []string{"ai"}},
	{"network", []string{"network"}},
	{"math", []string{"calc", "math"}},
	{"web", []string{"web", "search"}},
}

// forcedTagRules run after the base triggers. A monitoring or system tool
// is forced onto the network tag, and storage or system tools onto the
// data tag, even when neither word appears verbatim. This cross-triggering
// is externally observable behavior and must stay exactly as written.
var forcedTagRules = []tagRule{
	{"network", []string{"network", "monitor", "system", "realtime", "real-time"}},
	{"data", []string{"data", "storage", "system"}},
}

// ExtractTags derives the tag set for a tool from its name and
// description. The result is sorted for deterministic snapshots.
func ExtractTags(name, description string) []string {
	text := strings.ToLower(name) + " " + strings.ToLower(description)

	tags := make(map[string]struct{})
	for _, rule := range baseTagRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				tags[rule.tag] = struct{}{}
				break
			}
		}
	}
	for _, rule := range forcedTagRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				tags[rule.tag] = struct{}{}
				break
			}
		}
	}

	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
