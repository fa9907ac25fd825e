// Package directory implements the structured-search capability: filter,
// tag, and free-text lookup against named, schema-typed collections of
// records. Collection schemas are declared as data in a YAML catalog and
// drive query validation, dispatch, and output flattening; there is one
// generic code path for every collection type.
package directory

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldType enumerates the value types a record field may carry.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeBool   FieldType = "bool"
)

// FieldSpec declares one record field: its type, whether equality filters
// may target it, and whether free-text search covers it.
type FieldSpec struct {
	Type       FieldType `yaml:"type"`
	Filterable bool      `yaml:"filterable"`
	Searchable bool      `yaml:"searchable"`
}

// OutputField maps a record attribute to a search-result field. Required
// fields are emitted unconditionally; optional fields are emitted only when
// the attribute is present on the record. Presence, not truthiness: a
// stored false or 0 is still emitted.
type OutputField struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

// Schema declares one collection: identity, documentation, typed fields,
// and the fixed output mapping.
type Schema struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Fields      map[string]FieldSpec `yaml:"fields"`
	Output      []OutputField        `yaml:"output"`
}

// SearchableFields returns the field names covered by free-text search,
// sorted for deterministic query construction.
func (s *Schema) SearchableFields() []string {
	var names []string
	for name, spec := range s.Fields {
		if spec.Searchable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FilterableFields returns the filterable field names, sorted.
func (s *Schema) FilterableFields() []string {
	var names []string
	for name, spec := range s.Fields {
		if spec.Filterable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Catalog is the process-wide, read-only set of collection schemas. A
// tenant sees a configured subset of it.
type Catalog struct {
	schemas map[string]*Schema
	order   []string
}

// LoadCatalog reads collection schemas from a YAML file. The file holds a
// list of schemas under a top-level "collections" key.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	var doc struct {
		Collections []*Schema `yaml:"collections"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	return NewCatalog(doc.Collections)
}

// NewCatalog builds a catalog from schemas, validating each entry.
func NewCatalog(schemas []*Schema) (*Catalog, error) {
	c := &Catalog{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if s.Name == "" {
			return nil, fmt.Errorf("catalog: collection with empty name")
		}
		if _, dup := c.schemas[s.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate collection %q", s.Name)
		}
		if len(s.Fields) == 0 {
			return nil, fmt.Errorf("catalog: collection %q declares no fields", s.Name)
		}
		for _, out := range s.Output {
			if _, ok := s.Fields[out.Name]; !ok {
				return nil, fmt.Errorf("catalog: collection %q output references unknown field %q", s.Name, out.Name)
			}
		}
		c.schemas[s.Name] = s
		c.order = append(c.order, s.Name)
	}
	return c, nil
}

// Get returns the schema for a collection name, or nil if unknown.
func (c *Catalog) Get(name string) *Schema {
	return c.schemas[name]
}

// Names returns all collection names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Subset returns the schemas for the given names, in declaration order,
// silently dropping names the catalog does not know. Tenant configuration
// can therefore reference a collection before it ships without breaking
// requests.
func (c *Catalog) Subset(names []string) []*Schema {
	enabled := make(map[string]bool, len(names))
	for _, n := range names {
		enabled[n] = true
	}
	var out []*Schema
	for _, n := range c.order {
		if enabled[n] {
			out = append(out, c.schemas[n])
		}
	}
	return out
}
