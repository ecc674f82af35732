// Package assemble builds ordered feature vectors for model scoring from one
// or more record sources. The field order is fixed at construction and must
// match the order the model was trained with.
package assemble

import (
	"fmt"

	"github.com/caldew/loom/internal/catalog"
)

// Values is a field-name -> value view of a single record source.
type Values map[string]string

// MissingFieldError is returned when a required field is absent from every
// provided source.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q not present in any source", e.Field)
}

// FieldSet is an ordered, validated list of field names.
type FieldSet struct {
	names []string
	index map[string]int
}

// NewFieldSet validates the field names (non-empty, no duplicates) and fixes
// their order.
func NewFieldSet(names ...string) (*FieldSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("field set is empty")
	}

	fs := &FieldSet{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("field %d has an empty name", i)
		}
		if _, dup := fs.index[name]; dup {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		fs.index[name] = i
	}
	return fs, nil
}

// Len returns the number of fields.
func (fs *FieldSet) Len() int {
	return len(fs.names)
}

// Names returns a copy of the field names in order.
func (fs *FieldSet) Names() []string {
	return append([]string(nil), fs.names...)
}

// Index returns the position of name and whether it is in the set.
func (fs *FieldSet) Index(name string) (int, bool) {
	i, ok := fs.index[name]
	return i, ok
}

// Assemble resolves each field in order against the sources: the first source
// containing the field wins, so argument order is the priority order. A field
// absent from every source fails with *MissingFieldError. On success the
// result always has exactly Len() values.
func (fs *FieldSet) Assemble(sources ...Values) ([]string, error) {
	vector := make([]string, len(fs.names))
	for i, name := range fs.names {
		found := false
		for _, src := range sources {
			if v, ok := src[name]; ok {
				vector[i] = v
				found = true
				break
			}
		}
		if !found {
			return nil, &MissingFieldError{Field: name}
		}
	}
	return vector, nil
}

// RecordValues adapts a catalog record into an assembly source.
func RecordValues(rec catalog.Record) Values {
	return Values(rec.Values())
}
