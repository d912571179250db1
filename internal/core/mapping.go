package core

import (
	"fmt"
	"strings"
)

// ColumnMapping maps a field key to the spreadsheet header it reads from.
// A missing key means the field is unmapped.
type ColumnMapping map[string]string

// Clone returns an independent copy of m.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AutoMap proposes a header for every field. A field takes the first header
// whose trimmed text contains the field label, or else equals the field key,
// both compared case-insensitively. Fields with no match stay unmapped.
func AutoMap(fields []FieldSpec, headers []string) ColumnMapping {
	mapping := make(ColumnMapping, len(fields))
	for _, f := range fields {
		label := strings.ToLower(f.Label)
		key := strings.ToLower(f.Key)
		for _, h := range headers {
			norm := strings.ToLower(strings.TrimSpace(h))
			if norm == "" {
				continue
			}
			if strings.Contains(norm, label) || norm == key {
				mapping[f.Key] = h
				break
			}
		}
	}
	return mapping
}

// MissingRequired returns the required fields that have no mapping.
func MissingRequired(fields []FieldSpec, mapping ColumnMapping) []FieldSpec {
	var missing []FieldSpec
	for _, f := range fields {
		if f.Required && mapping[f.Key] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// headerIndex maps each header to its first column.
type headerIndex map[string]int

func newHeaderIndex(headers []string) headerIndex {
	idx := make(headerIndex, len(headers))
	for i, h := range headers {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

// resolveColumns turns a mapping into field key → column index.
func resolveColumns(mapping ColumnMapping, idx headerIndex) (map[string]int, error) {
	cols := make(map[string]int, len(mapping))
	for key, header := range mapping {
		if header == "" {
			continue
		}
		col, ok := idx[header]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHeader, header)
		}
		cols[key] = col
	}
	return cols, nil
}
