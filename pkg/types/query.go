package types

import "sort"

// MissingGroupKey labels the group of instances that lack the grouped
// property.
const MissingGroupKey = "(missing)"

// InstanceGroup is one bucket of instances sharing a property value.
type InstanceGroup struct {
	Key       string           `json:"key"`
	Instances []EntityInstance `json:"instances"`
}

// PropertyStats summarizes one property across a set of instances.
type PropertyStats struct {
	Property  string         `json:"property"`
	Count     int            `json:"count"`    // instances that have the property
	Distinct  int            `json:"distinct"` // distinct string forms
	Histogram map[string]int `json:"histogram"`
}

// HistogramBucket is one histogram entry.
type HistogramBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Sorted returns the histogram most frequent first, ties by value.
func (s PropertyStats) Sorted() []HistogramBucket {
	out := make([]HistogramBucket, 0, len(s.Histogram))
	for v, n := range s.Histogram {
		out = append(out, HistogramBucket{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
