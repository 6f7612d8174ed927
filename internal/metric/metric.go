package metric

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// UnitCount is the only unit emitted by gauges.
const UnitCount = "count"

// Dimensions maps dimension names to values for one data point.
type Dimensions map[string]string

// Keys returns the dimension names in sorted order.
func (d Dimensions) Keys() []string {
	return slices.Sorted(maps.Keys(d))
}

// String renders dimensions as a stable k=v list.
func (d Dimensions) String() string {
	keys := d.Keys()
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + d[k]
	}
	return "[" + strings.Join(pairs, " ") + "]"
}

// DataPoint is a single metric observation produced from a query result.
type DataPoint struct {
	Name       string
	Namespace  string
	Value      int64
	Timestamp  time.Time
	Dimensions Dimensions
	Unit       string
}

// Namespace derives the metric namespace for a manifest group.
func Namespace(prefix, group string) string {
	if prefix == "" {
		return group
	}
	return prefix + "/" + group
}
