// Package query holds pure reductions over a scan of instances: conjunctive
// filtering, grouping and per-property statistics.
package query

import (
	"github.com/mesh-intelligence/entitydb/pkg/types"
)

// Filter returns the instances whose properties equal every entry of where.
// Zero values in where are ignored, so an empty filter matches everything.
func Filter(instances []types.EntityInstance, where map[string]types.Value) []types.EntityInstance {
	out := []types.EntityInstance{}
	for _, inst := range instances {
		if matches(inst, where) {
			out = append(out, inst)
		}
	}
	return out
}

func matches(inst types.EntityInstance, where map[string]types.Value) bool {
	for name, want := range where {
		if want.IsZero() {
			continue
		}
		got, ok := inst.Properties[name]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// GroupBy buckets instances by the string form of property. Buckets appear
// in the order their key was first seen; instances without the property go
// to types.MissingGroupKey.
func GroupBy(instances []types.EntityInstance, property string) []types.InstanceGroup {
	groups := []types.InstanceGroup{}
	index := map[string]int{}
	for _, inst := range instances {
		key := types.MissingGroupKey
		if v, ok := inst.Properties[property]; ok && !v.IsZero() {
			key = v.String()
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, types.InstanceGroup{Key: key})
		}
		groups[i].Instances = append(groups[i].Instances, inst)
	}
	return groups
}

// PropertyStats counts how often each value of property occurs.
func PropertyStats(instances []types.EntityInstance, property string) types.PropertyStats {
	s := types.PropertyStats{Property: property, Histogram: map[string]int{}}
	for _, inst := range instances {
		v, ok := inst.Properties[property]
		if !ok || v.IsZero() {
			continue
		}
		s.Count++
		s.Histogram[v.String()]++
	}
	s.Distinct = len(s.Histogram)
	return s
}
