package analytics

import (
	"math"
	"sort"

	"pulse/internal/archive"
	"pulse/internal/events"
)

// Breakdowns counts every dimension over raw views, adds the archived
// frequency maps and computes percentages over the merged total.
func Breakdowns(precise []events.PageView, archived []archive.Bucket) map[events.Dimension][]BreakdownItem {
	out := make(map[events.Dimension][]BreakdownItem, len(events.Dimensions))
	for _, d := range events.Dimensions {
		counts := make(events.Counts)
		for i := range precise {
			if key, ok := breakdownKey(d, &precise[i]); ok {
				counts[key]++
			}
		}
		for i := range archived {
			for value, n := range archived[i].Counts(d) {
				if d == events.DimensionReferer {
					if value == "" || value == events.UnknownValue {
						continue
					}
					value = events.RefererOrigin(value)
				}
				counts[value] += n
			}
		}
		out[d] = rank(d, counts)
	}
	return out
}

func breakdownKey(d events.Dimension, pv *events.PageView) (string, bool) {
	key, ok := d.CountKey(pv)
	if !ok {
		return "", false
	}
	if d == events.DimensionReferer {
		key = events.RefererOrigin(key)
		if key == "" {
			return "", false
		}
	}
	return key, true
}

func rank(d events.Dimension, counts events.Counts) []BreakdownItem {
	var total int64
	for _, n := range counts {
		total += n
	}

	items := make([]BreakdownItem, 0, len(counts))
	for value, n := range counts {
		items = append(items, BreakdownItem{
			Value:      value,
			Label:      Label(d, value),
			Count:      n,
			Percentage: percentage(n, total),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Value < items[j].Value
	})
	return items
}

// percentage returns part/total as a percentage rounded to two decimals.
func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(10000*float64(part)/float64(total)) / 100
}
