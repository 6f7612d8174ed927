package projector

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

var (
	// ErrNotInt64 is returned when a column cannot be read as a 64-bit integer.
	ErrNotInt64 = errors.New("column is not int64")

	// ErrNotString is returned when a column cannot be read as a string.
	ErrNotString = errors.New("column is not a string")

	// ErrNull is returned when the value at a row is null.
	ErrNull = errors.New("value is null")
)

// Column reads typed values from one Arrow column.
// Implementations are Int64Column, StringColumn and OtherColumn.
type Column interface {
	Name() string
	AsInt64(row int) (int64, error)
	AsString(row int) (string, error)
}

// NewColumn wraps arr in the accessor matching its declared type.
func NewColumn(name string, arr arrow.Array) Column {
	switch a := arr.(type) {
	case *array.Int64:
		return Int64Column{name: name, values: a}
	case *array.String:
		return StringColumn{name: name, values: a}
	case *array.LargeString:
		return StringColumn{name: name, values: a}
	case *array.StringView:
		return StringColumn{name: name, values: a}
	default:
		return OtherColumn{name: name, dataType: arr.DataType()}
	}
}

// Int64Column is a 64-bit signed integer column.
type Int64Column struct {
	name   string
	values *array.Int64
}

func (c Int64Column) Name() string { return c.name }

func (c Int64Column) AsInt64(row int) (int64, error) {
	if c.values.IsNull(row) {
		return 0, fmt.Errorf("%s: %w", c.name, ErrNull)
	}
	return c.values.Value(row), nil
}

func (c Int64Column) AsString(int) (string, error) {
	return "", fmt.Errorf("%s (int64): %w", c.name, ErrNotString)
}

// stringArray is satisfied by the Arrow utf8 array variants.
type stringArray interface {
	IsNull(i int) bool
	Value(i int) string
}

// StringColumn is a utf8 column (regular, large or view encoded).
type StringColumn struct {
	name   string
	values stringArray
}

func (c StringColumn) Name() string { return c.name }

func (c StringColumn) AsInt64(int) (int64, error) {
	return 0, fmt.Errorf("%s (string): %w", c.name, ErrNotInt64)
}

func (c StringColumn) AsString(row int) (string, error) {
	if c.values.IsNull(row) {
		return "", fmt.Errorf("%s: %w", c.name, ErrNull)
	}
	return c.values.Value(row), nil
}

// OtherColumn is any column type the projector cannot read.
type OtherColumn struct {
	name     string
	dataType arrow.DataType
}

func (c OtherColumn) Name() string { return c.name }

func (c OtherColumn) AsInt64(int) (int64, error) {
	return 0, fmt.Errorf("%s (%s): %w", c.name, c.dataType, ErrNotInt64)
}

func (c OtherColumn) AsString(int) (string, error) {
	return "", fmt.Errorf("%s (%s): %w", c.name, c.dataType, ErrNotString)
}
