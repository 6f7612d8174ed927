package manifest

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v4"
)

// DefaultEnvVar holds a base64 encoded manifest when no file is given.
const DefaultEnvVar = "MANIFEST_B64"

// legacyRootKey wraps the group mapping in older manifests.
const legacyRootKey = "gauges"

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// FromBase64 decodes and parses a base64 encoded manifest.
func FromBase64(encoded string) (*Manifest, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return Parse(data)
}

// FromEnv parses the base64 manifest stored in the named environment variable.
func FromEnv(name string) (*Manifest, error) {
	encoded, ok := os.LookupEnv(name)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("environment variable %s is not set", name)
	}
	return FromBase64(encoded)
}

// Parse decodes a YAML manifest, keeping group declaration order.
func Parse(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}

	root := unwrapLegacy(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("manifest must be a mapping of group name to gauges")
	}

	m := &Manifest{}
	seen := make(map[string]bool)

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]

		var name string
		if err := keyNode.Decode(&name); err != nil {
			return nil, fmt.Errorf("line %d: group name must be a string: %w", keyNode.Line, err)
		}
		if name == "" {
			return nil, fmt.Errorf("line %d: group name cannot be empty", keyNode.Line)
		}
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate group %q", keyNode.Line, name)
		}
		seen[name] = true

		var raws []rawGauge
		if err := valueNode.Decode(&raws); err != nil {
			return nil, fmt.Errorf("group %q: %w", name, err)
		}

		group := Group{Name: name, Gauges: make([]GaugeSpec, 0, len(raws))}
		for j, raw := range raws {
			spec, err := raw.resolve()
			if err != nil {
				return nil, fmt.Errorf("group %q gauge at index %d: %w", name, j, err)
			}
			group.Gauges = append(group.Gauges, spec)
		}
		m.Groups = append(m.Groups, group)
	}

	if m.Len() == 0 {
		return nil, fmt.Errorf("manifest defines no gauges")
	}

	return m, nil
}

// unwrapLegacy accepts `gauges: {group: [...]}` as well as the bare mapping.
func unwrapLegacy(root *yaml.Node) *yaml.Node {
	if root.Kind != yaml.MappingNode || len(root.Content) != 2 {
		return root
	}
	key, value := root.Content[0], root.Content[1]
	if key.Value == legacyRootKey && value.Kind == yaml.MappingNode {
		return value
	}
	return root
}
