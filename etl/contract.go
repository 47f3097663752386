// Copyright 2024-2025 The appsink Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package etl

import (
	"strings"

	"github.com/appsink/appsink/internal/similartext"
)

// TableCategory drives the row cardinality of a destination table. It is
// derived once at contract load; the mapping engine branches on it, never on
// table names.
type TableCategory int

const (
	// ApplicationRoot tables get exactly one row per application.
	ApplicationRoot TableCategory = iota
	// ContactScoped tables get one row per surviving contact.
	ContactScoped
	// ContactChild tables get one row per deduplicated child element
	// (address, employment) under a surviving contact.
	ContactChild
	// Auxiliary tables are populated only by row-creating mapping types.
	Auxiliary
)

func (c TableCategory) String() string {
	switch c {
	case ApplicationRoot:
		return "application_root"
	case ContactScoped:
		return "contact_scoped"
	case ContactChild:
		return "contact_child"
	case Auxiliary:
		return "auxiliary"
	}
	return "unknown"
}

// Element types a filter rule may describe. The contact rule is special: the
// validator requires at least one element surviving it, and its priority
// order selects primary versus secondary contacts.
const (
	ElementContact    = "contact"
	ElementAddress    = "address"
	ElementEmployment = "employment"
)

// KeyIdentifier locates a scalar identifier inside the XML document.
type KeyIdentifier struct {
	XMLPath      string
	XMLAttribute string
}

// FilterRule rejects and deduplicates XML child elements of one logical
// type. An empty allowed-value list under RequiredAttributes means the
// attribute only has to be present and non-empty.
type FilterRule struct {
	ElementType        string
	XPath              string
	IdentityAttribute  string
	TypeAttribute      string
	RequiredAttributes map[string][]string
	PriorityOrder      []string
}

// Priority returns the index of a type-attribute value in the rule's
// priority order, or len(PriorityOrder) when the value is not listed. Lower
// is better. Comparison is case-insensitive.
func (r *FilterRule) Priority(typeValue string) int {
	for i, v := range r.PriorityOrder {
		if strings.EqualFold(v, typeValue) {
			return i
		}
	}
	return len(r.PriorityOrder)
}

// EnumMapping translates source string codes into destination values. Keys
// are matched case-insensitively.
type EnumMapping struct {
	Name       string
	Values     map[string]interface{}
	Default    interface{}
	HasDefault bool

	folded map[string]interface{}
}

// Lookup resolves a source code. The second return value is false when the
// code is unmapped and the enum declares no default.
func (e *EnumMapping) Lookup(code string) (interface{}, bool) {
	if e.folded == nil {
		e.folded = make(map[string]interface{}, len(e.Values))
		for k, v := range e.Values {
			e.folded[strings.ToLower(k)] = v
		}
	}
	if v, ok := e.folded[strings.ToLower(strings.TrimSpace(code))]; ok {
		return v, true
	}
	if e.HasDefault {
		return e.Default, true
	}
	return nil, false
}

// Column is the destination-side metadata of one column, either carried in
// the contract or augmented from the database catalog.
type Column struct {
	Name       string
	Nullable   bool
	Required   bool
	MaxLength  int
	Default    interface{}
	HasDefault bool
}

// FieldMapping maps one source location to one destination column, or, for
// row-creating mapping types, appends rows to its table.
type FieldMapping struct {
	XMLPath      string
	XMLAttribute string
	TargetColumn string
	DataType     string
	DataLength   int
	EnumName     string
	DefaultValue interface{}
	HasDefault   bool
	ExprText     string

	// Derived at contract load.
	Chain []MappingStep
	Type  Type
	Expr  Expression
}

// RowCreating reports whether the mapping's chain contains a row-creating
// step.
func (m *FieldMapping) RowCreating() bool {
	for _, s := range m.Chain {
		if s.RowCreating() {
			return true
		}
	}
	return false
}

// HasStep reports whether the chain contains a step of the given kind.
func (m *FieldMapping) HasStep(kind StepKind) bool {
	for _, s := range m.Chain {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// Step returns the first step of the given kind.
func (m *FieldMapping) Step(kind StepKind) (MappingStep, bool) {
	for _, s := range m.Chain {
		if s.Kind == kind {
			return s, true
		}
	}
	return MappingStep{}, false
}

// TableMapping is the contract section for one destination table.
type TableMapping struct {
	Name     string
	Mappings []*FieldMapping
	Columns  map[string]*Column

	// IdentityInsert marks tables whose primary key is supplied by the
	// source rather than generated by the destination.
	IdentityInsert bool
	// TolerateDuplicates permits skipping individual primary-key
	// collisions during per-row fallback inserts.
	TolerateDuplicates bool
	// DuplicateKey names the detector's key columns. Empty disables
	// pre-insert duplicate detection for the table.
	DuplicateKey []string
	// RequiredParent exempts the table from meaningful-row suppression.
	RequiredParent bool

	// Derived at contract load.
	Category         TableCategory
	ChildElementType string
}

// Column returns the metadata for a column, nil when the contract carries
// none.
func (t *TableMapping) Column(name string) *Column {
	if t.Columns == nil {
		return nil
	}
	return t.Columns[name]
}

// Contract is the immutable in-memory form of the mapping document. Safe
// for concurrent readers after construction.
type Contract struct {
	TargetSchema            string
	TableInsertionOrder     []string
	Tables                  map[string]*TableMapping
	Enums                   map[string]*EnumMapping
	FilterRules             []*FilterRule
	KeyIdentifiers          map[string]KeyIdentifier
	MeaningfulContactFields []string

	// Fingerprint identifies the loaded document; reloads with an equal
	// fingerprint are no-ops.
	Fingerprint uint64
}

// Table returns the mapping section for a destination table.
func (c *Contract) Table(name string) (*TableMapping, error) {
	if t, ok := c.Tables[name]; ok {
		return t, nil
	}
	similar := similartext.FindFromMap(c.Tables, name)
	return nil, ErrTableNotFound.New(name, similar)
}

// Enum returns a named enum mapping.
func (c *Contract) Enum(name string) (*EnumMapping, error) {
	if e, ok := c.Enums[name]; ok {
		return e, nil
	}
	similar := similartext.FindFromMap(c.Enums, name)
	return nil, ErrEnumNotFound.New(name, similar)
}

// Rule returns the filter rule for a logical element type, nil when the
// contract declares none.
func (c *Contract) Rule(elementType string) *FilterRule {
	for _, r := range c.FilterRules {
		if strings.EqualFold(r.ElementType, elementType) {
			return r
		}
	}
	return nil
}

// AppIDKey returns the identifier location for app_id.
func (c *Contract) AppIDKey() (KeyIdentifier, bool) {
	k, ok := c.KeyIdentifiers["app_id"]
	return k, ok
}

// ContactRule is shorthand for Rule(ElementContact).
func (c *Contract) ContactRule() *FilterRule { return c.Rule(ElementContact) }

// PrimaryContactType returns the first value of the contact rule's priority
// order, empty when no rule or order exists.
func (c *Contract) PrimaryContactType() string {
	r := c.ContactRule()
	if r == nil || len(r.PriorityOrder) == 0 {
		return ""
	}
	return r.PriorityOrder[0]
}

// MeaningfulFields returns the contact fields at least one of which must be
// populated for a contact to survive.
func (c *Contract) MeaningfulFields() []string {
	if len(c.MeaningfulContactFields) > 0 {
		return c.MeaningfulContactFields
	}
	return defaultMeaningfulFields
}

var defaultMeaningfulFields = []string{"birth_date", "first_name", "last_name", "ssn"}
