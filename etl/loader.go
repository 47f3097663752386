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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/hashstructure"

	"github.com/appsink/appsink/internal/similartext"
)

// ColumnReader supplies destination column metadata for tables whose
// contract section carries none. Implemented by the migrate package against
// the destination catalog.
type ColumnReader interface {
	TableColumns(ctx context.Context, schema, table string) (map[string]*Column, error)
}

// Loader reads mapping contracts from JSON documents into the immutable
// in-memory model. A Loader is stateless and safe for concurrent use.
type Loader struct {
	// ParseExpression compiles calculated-field expressions at load time.
	// Required when the contract uses expressions.
	ParseExpression func(string) (Expression, error)
	// Catalog, when set, fills in column metadata for tables whose
	// contract section has no column block.
	Catalog ColumnReader
}

// NewLoader returns a Loader compiling expressions with parse.
func NewLoader(parse func(string) (Expression, error)) *Loader {
	return &Loader{ParseExpression: parse}
}

// Wire form of the contract document.

type contractDoc struct {
	TargetSchema            string                      `json:"target_schema"`
	TableInsertionOrder     []string                    `json:"table_insertion_order"`
	Tables                  map[string]*tableDoc        `json:"tables"`
	EnumMappings            map[string]*enumDoc         `json:"enum_mappings"`
	ElementFiltering        filteringDoc                `json:"element_filtering"`
	KeyIdentifiers          map[string]keyIdentifierDoc `json:"key_identifiers"`
	MeaningfulContactFields []string                    `json:"meaningful_contact_fields"`
}

type tableDoc struct {
	Mappings           []*mappingDoc         `json:"mappings"`
	Columns            map[string]*columnDoc `json:"columns"`
	IdentityInsert     bool                  `json:"identity_insert"`
	TolerateDuplicates bool                  `json:"tolerate_duplicates"`
	DuplicateKey       []string              `json:"duplicate_key_columns"`
	RequiredParent     bool                  `json:"required_parent"`
}

type mappingDoc struct {
	XMLPath      string          `json:"xml_path"`
	XMLAttribute string          `json:"xml_attribute"`
	TargetColumn string          `json:"target_column"`
	DataType     string          `json:"data_type"`
	DataLength   int             `json:"data_length"`
	MappingType  json.RawMessage `json:"mapping_type"`
	EnumName     string          `json:"enum_name"`
	DefaultValue json.RawMessage `json:"default_value"`
	Expression   string          `json:"expression"`
}

type columnDoc struct {
	Nullable     bool            `json:"nullable"`
	Required     bool            `json:"required"`
	MaxLength    int             `json:"max_length"`
	DefaultValue json.RawMessage `json:"default_value"`
}

type enumDoc struct {
	Values  map[string]interface{} `json:"values"`
	Default json.RawMessage        `json:"default"`
}

type filteringDoc struct {
	FilterRules []*ruleDoc `json:"filter_rules"`
}

type ruleDoc struct {
	ElementType        string              `json:"element_type"`
	XPath              string              `json:"xpath"`
	IdentityAttribute  string              `json:"identity_attribute"`
	TypeAttribute      string              `json:"type_attribute"`
	RequiredAttributes map[string][]string `json:"required_attributes"`
	PriorityOrder      []string            `json:"priority_order"`
}

type keyIdentifierDoc struct {
	XMLPath      string `json:"xml_path"`
	XMLAttribute string `json:"xml_attribute"`
}

// LoadFile loads a contract from a JSON file on disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Contract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrContractInvalid.New(err.Error())
	}
	defer f.Close()
	return l.Load(ctx, f)
}

// Load loads a contract from a JSON stream.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Contract, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrContractInvalid.New(err.Error())
	}
	return l.LoadBytes(ctx, data)
}

// LoadBytes loads a contract from JSON bytes.
func (l *Loader) LoadBytes(ctx context.Context, data []byte) (*Contract, error) {
	var doc contractDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, ErrContractInvalid.New(err.Error())
	}

	if len(doc.Tables) == 0 {
		return nil, ErrContractInvalid.New("contract defines no tables")
	}
	if len(doc.TableInsertionOrder) == 0 {
		return nil, ErrContractInvalid.New("contract defines no table_insertion_order")
	}
	if _, ok := doc.KeyIdentifiers["app_id"]; !ok {
		return nil, ErrContractInvalid.New("key_identifiers.app_id is required")
	}

	c := &Contract{
		TargetSchema:            doc.TargetSchema,
		TableInsertionOrder:     append([]string(nil), doc.TableInsertionOrder...),
		Tables:                  make(map[string]*TableMapping, len(doc.Tables)),
		Enums:                   make(map[string]*EnumMapping, len(doc.EnumMappings)),
		KeyIdentifiers:          make(map[string]KeyIdentifier, len(doc.KeyIdentifiers)),
		MeaningfulContactFields: doc.MeaningfulContactFields,
	}

	for name, kd := range doc.KeyIdentifiers {
		if kd.XMLPath == "" || kd.XMLAttribute == "" {
			return nil, ErrContractInvalid.New(
				"key identifier " + name + " needs both xml_path and xml_attribute")
		}
		c.KeyIdentifiers[name] = KeyIdentifier{XMLPath: kd.XMLPath, XMLAttribute: kd.XMLAttribute}
	}

	for name, ed := range doc.EnumMappings {
		e := &EnumMapping{Name: name, Values: make(map[string]interface{}, len(ed.Values))}
		for k, v := range ed.Values {
			e.Values[k] = normalizeJSONValue(v)
		}
		def, has, err := decodeScalar(ed.Default)
		if err != nil {
			return nil, ErrContractInvalid.New(
				fmt.Sprintf("enum %s has an undecodable default: %s", name, err))
		}
		e.Default, e.HasDefault = def, has
		c.Enums[name] = e
	}

	for _, rd := range doc.ElementFiltering.FilterRules {
		if rd.ElementType == "" || rd.XPath == "" {
			return nil, ErrContractInvalid.New("filter rules need element_type and xpath")
		}
		c.FilterRules = append(c.FilterRules, &FilterRule{
			ElementType:        rd.ElementType,
			XPath:              rd.XPath,
			IdentityAttribute:  rd.IdentityAttribute,
			TypeAttribute:      rd.TypeAttribute,
			RequiredAttributes: rd.RequiredAttributes,
			PriorityOrder:      rd.PriorityOrder,
		})
	}
	if r := c.ContactRule(); r != nil {
		if r.IdentityAttribute == "" || r.TypeAttribute == "" || len(r.PriorityOrder) == 0 {
			return nil, ErrContractInvalid.New(
				"the contact filter rule needs identity_attribute, type_attribute and priority_order")
		}
	}

	for name, td := range doc.Tables {
		t, err := l.buildTable(name, td, c)
		if err != nil {
			return nil, err
		}
		c.Tables[name] = t
	}

	for _, name := range c.TableInsertionOrder {
		t, err := c.Table(name)
		if err != nil {
			return nil, err
		}
		if len(t.Mappings) == 0 {
			return nil, ErrContractInvalid.New("table " + name + " has no mappings")
		}
	}

	for _, t := range c.Tables {
		deriveCategory(t, c)
	}

	if l.Catalog != nil {
		for _, name := range c.TableInsertionOrder {
			t := c.Tables[name]
			if len(t.Columns) > 0 {
				continue
			}
			cols, err := l.Catalog.TableColumns(ctx, c.TargetSchema, name)
			if err != nil {
				return nil, err
			}
			t.Columns = cols
		}
	}

	fp, err := hashstructure.Hash(&doc, nil)
	if err != nil {
		return nil, ErrContractInvalid.New("cannot fingerprint contract: " + err.Error())
	}
	c.Fingerprint = fp

	return c, nil
}

func (l *Loader) buildTable(name string, td *tableDoc, c *Contract) (*TableMapping, error) {
	t := &TableMapping{
		Name:               name,
		IdentityInsert:     td.IdentityInsert,
		TolerateDuplicates: td.TolerateDuplicates,
		DuplicateKey:       td.DuplicateKey,
		RequiredParent:     td.RequiredParent,
	}

	if len(td.Columns) > 0 {
		t.Columns = make(map[string]*Column, len(td.Columns))
		for cn, cd := range td.Columns {
			def, has, err := decodeScalar(cd.DefaultValue)
			if err != nil {
				return nil, ErrContractInvalid.New(
					fmt.Sprintf("column %s.%s has an undecodable default: %s", name, cn, err))
			}
			t.Columns[cn] = &Column{
				Name:       cn,
				Nullable:   cd.Nullable,
				Required:   cd.Required,
				MaxLength:  cd.MaxLength,
				Default:    def,
				HasDefault: has,
			}
		}
	}

	for _, md := range td.Mappings {
		fm, err := l.buildMapping(name, md, c)
		if err != nil {
			return nil, err
		}
		if fm.HasStep(StepIdentityInsert) {
			t.IdentityInsert = true
		}
		t.Mappings = append(t.Mappings, fm)
	}
	return t, nil
}

func (l *Loader) buildMapping(table string, md *mappingDoc, c *Contract) (*FieldMapping, error) {
	fm := &FieldMapping{
		XMLPath:      md.XMLPath,
		XMLAttribute: md.XMLAttribute,
		TargetColumn: md.TargetColumn,
		DataType:     md.DataType,
		DataLength:   md.DataLength,
		EnumName:     md.EnumName,
		ExprText:     md.Expression,
	}

	def, has, err := decodeScalar(md.DefaultValue)
	if err != nil {
		return nil, ErrContractInvalid.New(fmt.Sprintf(
			"mapping %s.%s has an undecodable default: %s", table, md.TargetColumn, err))
	}
	fm.DefaultValue, fm.HasDefault = def, has

	tokens, err := chainTokens(md.MappingType)
	if err != nil {
		return nil, ErrContractInvalid.New(fmt.Sprintf(
			"mapping %s.%s: %s", table, md.TargetColumn, err))
	}
	fm.Chain, err = ParseMappingChain(tokens)
	if err != nil {
		return nil, err
	}

	fm.Type = String
	if md.DataType != "" {
		typ, ok := LookupType(md.DataType)
		if !ok {
			return nil, ErrUnknownDataType.New(md.DataType,
				table+"."+md.TargetColumn)
		}
		fm.Type = typ
	}

	if fm.HasStep(StepEnum) {
		if fm.EnumName == "" {
			return nil, ErrContractInvalid.New(fmt.Sprintf(
				"mapping %s.%s uses the enum mapping type without enum_name",
				table, md.TargetColumn))
		}
		if _, ok := c.Enums[fm.EnumName]; !ok {
			similar := similartext.FindFromMap(c.Enums, fm.EnumName)
			return nil, ErrEnumNotFound.New(fm.EnumName, similar)
		}
	}
	if fm.HasStep(StepCalculatedField) && fm.ExprText == "" {
		return nil, ErrContractInvalid.New(fmt.Sprintf(
			"mapping %s.%s uses the calculated_field mapping type without an expression",
			table, md.TargetColumn))
	}

	if md.Expression != "" {
		if l.ParseExpression == nil {
			return nil, ErrContractInvalid.New(fmt.Sprintf(
				"mapping %s.%s carries an expression but the loader has no expression parser",
				table, md.TargetColumn))
		}
		fm.Expr, err = l.ParseExpression(md.Expression)
		if err != nil {
			return nil, err
		}
	}

	return fm, nil
}

// deriveCategory classifies a table once. A mapping drives cardinality only
// when it is anchored at a rule's xpath and carries no source-redirect step
// (last_valid_*_contact, curr_address_only); redirect mappings are aggregate
// lookups usable at any cardinality. Precedence: auxiliary, contact child,
// contact scoped, application root.
func deriveCategory(t *TableMapping, c *Contract) {
	for _, m := range t.Mappings {
		if m.RowCreating() {
			t.Category = Auxiliary
			return
		}
	}

	anchored := func(xpath string) bool {
		for _, m := range t.Mappings {
			if m.XMLPath != xpath {
				continue
			}
			if m.HasStep(StepLastValidPrimaryContact) ||
				m.HasStep(StepLastValidSecondaryContact) ||
				m.HasStep(StepCurrAddressOnly) {
				continue
			}
			return true
		}
		return false
	}

	if r := c.Rule(ElementAddress); r != nil && anchored(r.XPath) {
		t.Category = ContactChild
		t.ChildElementType = ElementAddress
		return
	}
	if r := c.Rule(ElementEmployment); r != nil && anchored(r.XPath) {
		t.Category = ContactChild
		t.ChildElementType = ElementEmployment
		return
	}
	if r := c.ContactRule(); r != nil && anchored(r.XPath) {
		t.Category = ContactScoped
		return
	}
	t.Category = ApplicationRoot
}

func chainTokens(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil, nil
		}
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	return nil, fmt.Errorf("mapping_type must be a string or a list of strings")
}

// decodeScalar decodes an optional scalar JSON value. The second return
// value distinguishes an explicit null from an absent field.
func decodeScalar(raw json.RawMessage) (interface{}, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, false, err
	}
	return normalizeJSONValue(v), true, nil
}

// normalizeJSONValue rewrites json.Number values into int64 where they are
// integral and float64 otherwise, recursively for containers.
func normalizeJSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []interface{}:
		for i := range t {
			t[i] = normalizeJSONValue(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = normalizeJSONValue(t[k])
		}
		return t
	}
	return v
}
