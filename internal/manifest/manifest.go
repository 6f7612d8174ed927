package manifest

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// Format names the storage format of a gauge's table.
type Format string

const (
	FormatDelta   Format = "delta"
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// DefaultFormat is used when a gauge does not name a format.
const DefaultFormat = FormatDelta

// GaugeSpec describes one configured query and how to measure it.
type GaugeSpec struct {
	URL    string
	Metric string
	Mode   Mode
	Query  string
	Format Format
}

// Group is a named, ordered list of gauges.
type Group struct {
	Name   string
	Gauges []GaugeSpec
}

// Manifest holds all groups in declaration order.
type Manifest struct {
	Groups []Group
}

// Len returns the total number of gauges.
func (m *Manifest) Len() int {
	n := 0
	for _, g := range m.Groups {
		n += len(g.Gauges)
	}
	return n
}

// Filter returns a manifest restricted to the named groups.
// An empty names list returns m unchanged.
func (m *Manifest) Filter(names []string) (*Manifest, error) {
	if len(names) == 0 {
		return m, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	out := &Manifest{}
	for _, g := range m.Groups {
		if want[g.Name] {
			out.Groups = append(out.Groups, g)
			delete(want, g.Name)
		}
	}

	if len(want) > 0 {
		missing := slices.Sorted(maps.Keys(want))
		return nil, fmt.Errorf("groups not found in manifest: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// rawGauge is the YAML form of a gauge record.
type rawGauge struct {
	URL    string `yaml:"url"`
	Metric string `yaml:"metric"`
	Name   string `yaml:"name"` // alias for metric
	Type   *Mode  `yaml:"type"`
	Query  string `yaml:"query"`
	Format string `yaml:"format,omitempty"`
}

func (r rawGauge) resolve() (GaugeSpec, error) {
	metric := r.Metric
	if metric == "" {
		metric = r.Name
	}
	if metric == "" {
		return GaugeSpec{}, fmt.Errorf("metric cannot be empty")
	}

	if r.URL == "" {
		return GaugeSpec{}, fmt.Errorf("metric %q: url cannot be empty", metric)
	}
	if _, err := url.Parse(r.URL); err != nil {
		return GaugeSpec{}, fmt.Errorf("metric %q: invalid url: %w", metric, err)
	}

	if r.Type == nil {
		return GaugeSpec{}, fmt.Errorf("metric %q: type cannot be empty", metric)
	}

	if strings.TrimSpace(r.Query) == "" {
		return GaugeSpec{}, fmt.Errorf("metric %q: query cannot be empty", metric)
	}

	format := DefaultFormat
	if r.Format != "" {
		format = Format(strings.ToLower(r.Format))
		switch format {
		case FormatDelta, FormatParquet, FormatCSV, FormatJSON:
		default:
			return GaugeSpec{}, fmt.Errorf("metric %q: unknown format %q (must be delta, parquet, csv or json)", metric, r.Format)
		}
	}

	return GaugeSpec{
		URL:    r.URL,
		Metric: metric,
		Mode:   *r.Type,
		Query:  r.Query,
		Format: format,
	}, nil
}
