package manifest

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v4"
)

// Mode selects how a gauge's query result becomes metrics.
type Mode int

const (
	// ModeCount reports the number of rows in the result.
	ModeCount Mode = iota

	// ModeDimensionalCount reports one point per row, reading the value from
	// the `count` column and dimensions from every other column.
	ModeDimensionalCount
)

// ParseMode parses a measurement type, ignoring case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count":
		return ModeCount, nil
	case "dimensionalcount":
		return ModeDimensionalCount, nil
	default:
		return 0, fmt.Errorf("unknown measurement type %q (must be count or dimensionalcount)", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeCount:
		return "count"
	case ModeDimensionalCount:
		return "dimensionalcount"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// UnmarshalYAML decodes the scalar type name.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("type must be a string: %w", err)
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
