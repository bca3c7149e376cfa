// Package feeders loads the feeder identifier universe from the utility's
// circuit-segment shapefile. The identifiers are opaque strings used as set
// keys and filename stems for the rest of the run.
package feeders

import (
	"fmt"
	"sort"
	"strings"

	shp "github.com/jonas-p/go-shp"
)

// Set is a set of feeder identifiers
type Set map[string]struct{}

// NewSet creates a set from a list of identifiers
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts an identifier
func (s Set) Add(id string) {
	s[id] = struct{}{}
}

// Contains reports whether the identifier is in the set
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of identifiers
func (s Set) Len() int {
	return len(s)
}

// Difference returns the identifiers in s that are not in other
func (s Set) Difference(other Set) Set {
	diff := make(Set)
	for id := range s {
		if !other.Contains(id) {
			diff.Add(id)
		}
	}
	return diff
}

// Sorted returns the identifiers in lexicographic order
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadFromShapefile reads the attribute table of the feeder-level shapefile
// and returns the set of values of the named feeder-identifier field. Fails
// if the file cannot be opened or the field is absent; there is nothing to
// retry in a local synchronous read.
func LoadFromShapefile(path, fieldName string) (Set, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer reader.Close()

	fieldIdx := -1
	for i, field := range reader.Fields() {
		if strings.EqualFold(field.String(), fieldName) {
			fieldIdx = i
			break
		}
	}
	if fieldIdx < 0 {
		return nil, fmt.Errorf("shapefile %s has no attribute %q", path, fieldName)
	}

	ids := make(Set)
	for row := 0; reader.Next(); row++ {
		id := strings.TrimSpace(reader.ReadAttribute(row, fieldIdx))
		if id == "" {
			continue
		}
		ids.Add(id)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shapefile %s: %w", path, err)
	}

	return ids, nil
}
