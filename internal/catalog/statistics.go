package catalog

import (
	"sort"

	"toolmesh/internal/domain"
)

const leaderboardSize = 10

// Statistics aggregates registry health and catalog contents into the
// report exposed to the surrounding application.
func (c *Catalog) Statistics() domain.ServerStatistics {
	stats := domain.ServerStatistics{
		Servers: c.registry.HealthMap(),
		Tools: domain.ToolStatistics{
			ByCategory: make(map[string]int),
			ByServer:   make(map[string]int),
		},
	}

	c.mu.RLock()
	tools := make([]domain.ToolDescriptor, 0, len(c.tools))
	for _, tool := range c.tools {
		tools = append(tools, *tool)
	}
	c.mu.RUnlock()

	stats.Tools.TotalCount = len(tools)
	for _, tool := range tools {
		stats.Tools.ByCategory[tool.Category]++
		stats.Tools.ByServer[tool.Endpoint]++
	}

	used := make([]domain.ToolDescriptor, 0, len(tools))
	timed := make([]domain.ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if tool.UsageCount > 0 {
			used = append(used, tool)
		}
		if tool.AvgResponseTime > 0 {
			timed = append(timed, tool)
		}
	}

	sort.Slice(used, func(i, j int) bool {
		if used[i].UsageCount != used[j].UsageCount {
			return used[i].UsageCount > used[j].UsageCount
		}
		return used[i].Key() < used[j].Key()
	})
	for _, tool := range topN(used, leaderboardSize) {
		stats.Tools.MostUsed = append(stats.Tools.MostUsed, domain.ToolUsageRank{
			Name:       tool.Name,
			Endpoint:   tool.Endpoint,
			UsageCount: tool.UsageCount,
		})
	}

	sort.Slice(timed, func(i, j int) bool {
		if timed[i].AvgResponseTime != timed[j].AvgResponseTime {
			return timed[i].AvgResponseTime < timed[j].AvgResponseTime
		}
		return timed[i].Key() < timed[j].Key()
	})
	for _, tool := range topN(timed, leaderboardSize) {
		stats.Tools.FastestResponse = append(stats.Tools.FastestResponse, domain.ToolLatencyRank{
			Name:            tool.Name,
			Endpoint:        tool.Endpoint,
			AvgResponseTime: tool.AvgResponseTime,
		})
	}

	return stats
}

func topN(tools []domain.ToolDescriptor, n int) []domain.ToolDescriptor {
	if len(tools) > n {
		return tools[:n]
	}
	return tools
}
