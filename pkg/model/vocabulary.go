// pkg/model/vocabulary.go
package model

import (
	"sort"
)

// OneHotColumn is one indicator column derived from a vocabulary entry
type OneHotColumn struct {
	Field string
	Value string
	Name  string // "<field>_<value>"
}

// CategoryVocabulary maps a categorical field to the sorted set of values seen
// during the pre-scan. It is immutable once built and safe for concurrent reads.
type CategoryVocabulary struct {
	fields map[string][]string
	order  []string
}

// NewCategoryVocabulary builds a vocabulary from raw value sets.
// Values are de-duplicated and sorted; empty values are dropped, and a field
// left with no values is not part of the vocabulary.
func NewCategoryVocabulary(values map[string][]string) *CategoryVocabulary {
	v := &CategoryVocabulary{fields: make(map[string][]string, len(values))}

	for field, vals := range values {
		seen := make(map[string]struct{}, len(vals))
		sorted := make([]string, 0, len(vals))
		for _, val := range vals {
			if val == "" {
				continue
			}
			if _, dup := seen[val]; dup {
				continue
			}
			seen[val] = struct{}{}
			sorted = append(sorted, val)
		}
		if len(sorted) == 0 {
			continue
		}
		sort.Strings(sorted)
		v.fields[field] = sorted
	}

	// Known fields first in canonical order, anything else after, alphabetically
	var extra []string
	for field := range v.fields {
		if !isCanonicalField(field) {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	for _, field := range CategoricalFields {
		if _, ok := v.fields[field]; ok {
			v.order = append(v.order, field)
		}
	}
	v.order = append(v.order, extra...)

	return v
}

// Fields returns the vocabulary's fields in column order
func (v *CategoryVocabulary) Fields() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Has reports whether the field takes part in encoding
func (v *CategoryVocabulary) Has(field string) bool {
	if v == nil {
		return false
	}
	_, ok := v.fields[field]
	return ok
}

// Values returns a copy of the sorted values for a field
func (v *CategoryVocabulary) Values(field string) []string {
	if v == nil {
		return nil
	}
	vals := v.fields[field]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Map returns a copy of the whole vocabulary
func (v *CategoryVocabulary) Map() map[string][]string {
	out := make(map[string][]string)
	if v == nil {
		return out
	}
	for field := range v.fields {
		out[field] = v.Values(field)
	}
	return out
}

// OneHotColumns lists every (field, value) indicator in field order, then value order
func (v *CategoryVocabulary) OneHotColumns() []OneHotColumn {
	if v == nil {
		return nil
	}
	var cols []OneHotColumn
	for _, field := range v.order {
		for _, val := range v.fields[field] {
			cols = append(cols, OneHotColumn{
				Field: field,
				Value: val,
				Name:  field + "_" + val,
			})
		}
	}
	return cols
}

// Size returns the total number of indicator columns
func (v *CategoryVocabulary) Size() int {
	if v == nil {
		return 0
	}
	n := 0
	for _, vals := range v.fields {
		n += len(vals)
	}
	return n
}

func isCanonicalField(field string) bool {
	for _, f := range CategoricalFields {
		if f == field {
			return true
		}
	}
	return false
}
