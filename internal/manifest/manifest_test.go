package manifest

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
orders:
  - url: s3://lake/orders
    metric: order_count
    type: count
    query: SELECT * FROM source
  - url: s3://lake/orders
    metric: orders_by_region
    type: DimensionalCount
    query: SELECT region, count(*) AS count FROM source GROUP BY region
audit:
  - url: file:///data/audit.parquet
    metric: audit_rows
    type: COUNT
    format: Parquet
    query: SELECT * FROM source
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	require.Len(t, m.Groups, 2)
	assert.Equal(t, "orders", m.Groups[0].Name)
	assert.Equal(t, "audit", m.Groups[1].Name)
	assert.Equal(t, 3, m.Len())

	first := m.Groups[0].Gauges[0]
	assert.Equal(t, "s3://lake/orders", first.URL)
	assert.Equal(t, "order_count", first.Metric)
	assert.Equal(t, ModeCount, first.Mode)
	assert.Equal(t, FormatDelta, first.Format)

	assert.Equal(t, ModeDimensionalCount, m.Groups[0].Gauges[1].Mode)

	audit := m.Groups[1].Gauges[0]
	assert.Equal(t, ModeCount, audit.Mode)
	assert.Equal(t, FormatParquet, audit.Format)
}

func TestParse_KeepsDeclarationOrder(t *testing.T) {
	doc := `
zeta:
  - {url: a, metric: z, type: count, query: q}
alpha:
  - {url: a, metric: a1, type: count, query: q}
  - {url: a, metric: a2, type: count, query: q}
mid:
  - {url: a, metric: m, type: count, query: q}
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)

	var names []string
	for _, g := range m.Groups {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, "a1", m.Groups[1].Gauges[0].Metric)
	assert.Equal(t, "a2", m.Groups[1].Gauges[1].Metric)
}

func TestParse_LegacyGaugesRoot(t *testing.T) {
	doc := `
gauges:
  orders:
    - url: s3://lake/orders
      name: order_count
      type: count
      query: SELECT 1
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, m.Groups, 1)
	assert.Equal(t, "orders", m.Groups[0].Name)
	assert.Equal(t, "order_count", m.Groups[0].Gauges[0].Metric)
}

func TestParse_GroupNamedGauges(t *testing.T) {
	doc := `
gauges:
  - {url: a, metric: m, type: count, query: q}
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, m.Groups, 1)
	assert.Equal(t, "gauges", m.Groups[0].Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "empty document",
			doc:  "",
			want: "manifest is empty",
		},
		{
			name: "not a mapping",
			doc:  "- a\n- b\n",
			want: "must be a mapping",
		},
		{
			name: "unknown type",
			doc:  "g:\n  - {url: a, metric: m, type: sum, query: q}\n",
			want: `unknown measurement type "sum"`,
		},
		{
			name: "missing type",
			doc:  "g:\n  - {url: a, metric: m, query: q}\n",
			want: "type cannot be empty",
		},
		{
			name: "missing metric",
			doc:  "g:\n  - {url: a, type: count, query: q}\n",
			want: "metric cannot be empty",
		},
		{
			name: "missing url",
			doc:  "g:\n  - {metric: m, type: count, query: q}\n",
			want: "url cannot be empty",
		},
		{
			name: "missing query",
			doc:  "g:\n  - {url: a, metric: m, type: count}\n",
			want: "query cannot be empty",
		},
		{
			name: "unknown format",
			doc:  "g:\n  - {url: a, metric: m, type: count, query: q, format: avro}\n",
			want: `unknown format "avro"`,
		},
		{
			name: "group is not a list",
			doc:  "g: {url: a}\n",
			want: `group "g"`,
		},
		{
			name: "duplicate group",
			doc:  "g:\n  - {url: a, metric: m, type: count, query: q}\ng:\n  - {url: a, metric: n, type: count, query: q}\n",
			want: `"g"`,
		},
		{
			name: "no gauges",
			doc:  "g: []\n",
			want: "no gauges",
		},
		{
			name: "invalid yaml",
			doc:  "g: [\n",
			want: "failed to parse manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(sampleManifest))

	m, err := FromBase64(encoded + "\n")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	_, err = FromBase64("not base64!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode manifest")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TEST_MANIFEST_B64", base64.StdEncoding.EncodeToString([]byte(sampleManifest)))

	m, err := FromEnv("TEST_MANIFEST_B64")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	_, err = FromEnv("TEST_MANIFEST_B64_UNSET")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	same, err := m.Filter(nil)
	require.NoError(t, err)
	assert.Same(t, m, same)

	audit, err := m.Filter([]string{"audit"})
	require.NoError(t, err)
	require.Len(t, audit.Groups, 1)
	assert.Equal(t, "audit", audit.Groups[0].Name)

	_, err = m.Filter([]string{"missing"})
	require.Error(t, err)
}

func TestFilterReportsMissingGroupsSorted(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	for range 5 {
		_, err = m.Filter([]string{"zeta", "audit", "alpha", "mid"})
		require.Error(t, err)
		assert.EqualError(t, err, "groups not found in manifest: alpha, mid, zeta")
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"count", "Count", "COUNT", " count "} {
		mode, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, ModeCount, mode)
	}
	for _, s := range []string{"dimensionalcount", "DimensionalCount"} {
		mode, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, ModeDimensionalCount, mode)
	}
	_, err := ParseMode("dimensional_count")
	require.Error(t, err)

	assert.Equal(t, "count", ModeCount.String())
	assert.Equal(t, "dimensionalcount", ModeDimensionalCount.String())
}
