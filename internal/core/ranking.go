package core

import "sort"

// DefaultRankingLimit caps the recent and popular name lists.
const DefaultRankingLimit = 10

// NameStats aggregates the rows of one food name.
type NameStats struct {
	Name     string
	LastDay  Day
	DayCount int
}

// Aggregate groups entries by name. (date, name) is unique, so the row
// count per name is its distinct day count.
func Aggregate(entries []FoodEntry) []NameStats {
	idx := make(map[string]int)
	var out []NameStats
	for _, e := range entries {
		i, ok := idx[e.Name]
		if !ok {
			idx[e.Name] = len(out)
			out = append(out, NameStats{Name: e.Name, LastDay: e.Date, DayCount: 1})
			continue
		}
		out[i].DayCount++
		if e.Date > out[i].LastDay {
			out[i].LastDay = e.Date
		}
	}
	return out
}

// RankRecent orders names by most recent day, ties by name ascending.
func RankRecent(stats []NameStats, limit int) []string {
	sorted := append([]NameStats(nil), stats...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LastDay != sorted[j].LastDay {
			return sorted[i].LastDay > sorted[j].LastDay
		}
		return sorted[i].Name < sorted[j].Name
	})
	return names(sorted, limit)
}

// RankPopular orders names by distinct day count, then most recent day,
// ties by name ascending.
func RankPopular(stats []NameStats, limit int) []string {
	sorted := append([]NameStats(nil), stats...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DayCount != sorted[j].DayCount {
			return sorted[i].DayCount > sorted[j].DayCount
		}
		if sorted[i].LastDay != sorted[j].LastDay {
			return sorted[i].LastDay > sorted[j].LastDay
		}
		return sorted[i].Name < sorted[j].Name
	})
	return names(sorted, limit)
}

func names(stats []NameStats, limit int) []string {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	if len(stats) > limit {
		stats = stats[:limit]
	}
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Name
	}
	return out
}

// SortEntries orders entries by date then name.
func SortEntries(entries []FoodEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].Name < entries[j].Name
	})
}
