package tabletest

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Rows builds a record with the given fields; a nil value appends a null.
// Supported builders are int64, float64 and string.
func Rows(fields []arrow.Field, rows ...[]any) (arrow.Record, error) {
	schema := arrow.NewSchema(fields, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	for r, row := range rows {
		if len(row) != len(fields) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(fields))
		}
		for i, v := range row {
			fb := b.Field(i)
			if v == nil {
				fb.AppendNull()
				continue
			}
			switch fb := fb.(type) {
			case *array.Int64Builder:
				fb.Append(v.(int64))
			case *array.Float64Builder:
				fb.Append(v.(float64))
			case *array.StringBuilder:
				fb.Append(v.(string))
			default:
				return nil, fmt.Errorf("unsupported builder %T", fb)
			}
		}
	}

	return b.NewRecord(), nil
}
