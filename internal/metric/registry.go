package metric

import (
	"sort"
	"strings"
	"sync"
)

// Registry keeps the latest published value per series.
// A series is identified by namespace, name and dimensions.
type Registry struct {
	mu         sync.RWMutex
	series     map[string]entry
	generation uint64
}

type entry struct {
	point      DataPoint
	generation uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{series: make(map[string]entry)}
}

// Record stores p, replacing any earlier point of the same series.
func (r *Registry) Record(p DataPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[seriesKey(p)] = entry{point: p, generation: r.generation}
}

// Sweep removes every series not recorded since the previous Sweep and
// returns how many were removed. Called once per run, it keeps only the
// series the latest run reported.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, e := range r.series {
		if e.generation != r.generation {
			delete(r.series, k)
			removed++
		}
	}
	r.generation++
	return removed
}

// Points returns a snapshot of all series ordered by key.
func (r *Registry) Points() []DataPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]DataPoint, len(keys))
	for i, k := range keys {
		points[i] = r.series[k].point
	}
	return points
}

// Len returns the number of series held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.series)
}

func seriesKey(p DataPoint) string {
	var b strings.Builder
	b.WriteString(p.Namespace)
	b.WriteByte(0)
	b.WriteString(p.Name)
	for _, k := range p.Dimensions.Keys() {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte(1)
		b.WriteString(p.Dimensions[k])
	}
	return b.String()
}
