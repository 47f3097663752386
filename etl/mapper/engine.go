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

// Package mapper turns one application's XML into the rows the contract
// prescribes. Apply is a pure function of the document and the contract;
// everything it learns about the application (suppressed contacts, truncated
// values) lands on the context as warnings, never in the database.
package mapper

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/appsink/appsink/etl"
)

// Engine maps parsed applications under one contract. Safe for concurrent
// use; all per-application state lives on the stack of Apply.
type Engine struct {
	contract *etl.Contract
	filter   *Filter

	// Attributes that identify rather than describe: the application id,
	// plus each filter rule's identity and type attributes. Values sourced
	// from these never count toward a row's meaningful data.
	identityAttrs map[string]struct{}
}

// NewEngine returns an Engine for one contract.
func NewEngine(c *etl.Contract) *Engine {
	e := &Engine{
		contract:      c,
		filter:        NewFilter(c),
		identityAttrs: map[string]struct{}{},
	}
	if key, ok := c.AppIDKey(); ok {
		e.identityAttrs[strings.ToLower(key.XMLAttribute)] = struct{}{}
	}
	for _, r := range c.FilterRules {
		if r.IdentityAttribute != "" {
			e.identityAttrs[strings.ToLower(r.IdentityAttribute)] = struct{}{}
		}
		if r.TypeAttribute != "" {
			e.identityAttrs[strings.ToLower(r.TypeAttribute)] = struct{}{}
		}
	}
	return e
}

// rowEnv is the source scope of one row under construction: which contact
// and which child element a mapping's XPath resolves against, plus the
// shared per-application lookups.
type rowEnv struct {
	doc       *Document
	appCtx    etl.Row
	contacts  *Contacts
	addresses []*xmlquery.Node
	filter    *Filter

	contactXPath string
	childXPath   string
	addressRule  *etl.FilterRule

	contact *xmlquery.Node
	child   *xmlquery.Node
}

// rawValue extracts a mapping's source value. Mappings anchored at the row's
// child or contact XPath read from the row's own elements; everything else
// reads from the first match in the document. Redirect steps replace the
// source wholesale, so extraction is skipped for them.
func (env *rowEnv) rawValue(m *etl.FieldMapping) (string, bool, error) {
	if m.HasStep(etl.StepLastValidPrimaryContact) ||
		m.HasStep(etl.StepLastValidSecondaryContact) ||
		m.HasStep(etl.StepCurrAddressOnly) {
		return "", false, nil
	}
	if env.child != nil && m.XMLPath == env.childXPath {
		v, ok := Attr(env.child, m.XMLAttribute)
		return v, ok, nil
	}
	if env.contact != nil && m.XMLPath == env.contactXPath {
		v, ok := Attr(env.contact, m.XMLAttribute)
		return v, ok, nil
	}
	n, err := env.doc.First(m.XMLPath)
	if err != nil {
		return "", false, err
	}
	v, ok := Attr(n, m.XMLAttribute)
	return v, ok, nil
}

// exprRow binds the expression context for one mapping: the flattened app
// context plus the raw source value under both the attribute's name and
// "value". An empty source shadows any app-level attribute of the same name.
func (env *rowEnv) exprRow(m *etl.FieldMapping, raw string, has bool) etl.Row {
	row := env.appCtx.Copy()
	var v interface{}
	if has {
		v = raw
	}
	row["value"] = v
	if m.XMLAttribute != "" {
		row[m.XMLAttribute] = v
		row[strings.ToLower(m.XMLAttribute)] = v
	}
	return row
}

// currentAddress resolves the current-type address of the row's contact, or
// of the primary contact for application-scoped rows.
func (env *rowEnv) currentAddress() *xmlquery.Node {
	rule := env.addressRule
	if rule == nil || len(rule.PriorityOrder) == 0 {
		return nil
	}
	owner := env.contact
	if owner == nil {
		owner = env.contacts.Primary
	}
	if owner == nil {
		return nil
	}
	contactRule := env.filter.contract.ContactRule()
	ownerID := ""
	if contactRule != nil {
		ownerID, _ = Attr(owner, contactRule.IdentityAttribute)
	}
	var last *xmlquery.Node
	for _, a := range env.addresses {
		t, _ := Attr(a, rule.TypeAttribute)
		if !strings.EqualFold(t, rule.PriorityOrder[0]) {
			continue
		}
		if env.filter.ContactIdentity(a) != ownerID {
			continue
		}
		last = a
	}
	return last
}

// Apply maps one parsed application to its destination rows. The result
// honors the contract's cardinality per table: one row per application for
// root tables, one per surviving contact, one per deduplicated child
// element, and whatever the row-creating mappings emit for auxiliaries.
func (e *Engine) Apply(ctx *etl.Context, appID int64, doc *Document) (etl.RowSet, error) {
	contacts, err := e.filter.Contacts(ctx, doc)
	if err != nil {
		return nil, err
	}
	addresses, err := e.filter.Elements(doc, etl.ElementAddress)
	if err != nil {
		return nil, err
	}
	employments, err := e.filter.Elements(doc, etl.ElementEmployment)
	if err != nil {
		return nil, err
	}
	children := map[string][]*xmlquery.Node{
		etl.ElementAddress:    addresses,
		etl.ElementEmployment: employments,
	}

	base := rowEnv{
		doc:         doc,
		appCtx:      appContext(doc, contacts),
		contacts:    contacts,
		addresses:   addresses,
		filter:      e.filter,
		addressRule: e.contract.Rule(etl.ElementAddress),
	}
	if r := e.contract.ContactRule(); r != nil {
		base.contactXPath = r.XPath
	}

	rs := etl.RowSet{}
	for _, name := range e.contract.TableInsertionOrder {
		t, err := e.contract.Table(name)
		if err != nil {
			return nil, err
		}
		switch t.Category {
		case etl.ApplicationRoot:
			env := base
			row, _, err := e.buildRow(ctx, t, &env)
			if err != nil {
				return nil, err
			}
			rs.Append(name, row)

		case etl.ContactScoped:
			for _, c := range contacts.All {
				env := base
				env.contact = c
				row, substantive, err := e.buildRow(ctx, t, &env)
				if err != nil {
					return nil, err
				}
				if substantive == 0 && !t.RequiredParent {
					continue
				}
				rs.Append(name, row)
			}

		case etl.ContactChild:
			rule := e.contract.Rule(t.ChildElementType)
			if rule == nil {
				continue
			}
			for _, ch := range children[t.ChildElementType] {
				parent, ok := contacts.ByIdentity(e.filter.ContactIdentity(ch))
				if !ok {
					// The owning contact was filtered or suppressed.
					continue
				}
				env := base
				env.contact = parent
				env.child = ch
				env.childXPath = rule.XPath
				row, substantive, err := e.buildRow(ctx, t, &env)
				if err != nil {
					return nil, err
				}
				if substantive == 0 && !t.RequiredParent {
					continue
				}
				rs.Append(name, row)
			}

		case etl.Auxiliary:
			env := base
			rows, err := e.auxiliaryRows(ctx, appID, t, &env)
			if err != nil {
				return nil, err
			}
			rs.Append(name, rows...)
		}
	}
	return rs, nil
}

// buildRow evaluates every scalar mapping of a table within one source
// scope. The second return value counts columns populated from actual source
// data, excluding identifiers and defaults; zero means the row carries
// nothing worth inserting.
func (e *Engine) buildRow(ctx *etl.Context, t *etl.TableMapping, env *rowEnv) (etl.Row, int, error) {
	row := etl.Row{}
	substantive := 0
	for _, m := range t.Mappings {
		if m.RowCreating() {
			continue
		}
		raw, has, err := env.rawValue(m)
		if err != nil {
			return nil, 0, err
		}
		cv, err := e.runChain(ctx, m, raw, has, env)
		if err != nil {
			return nil, 0, err
		}

		v, present := cv.v, cv.has
		fromSource := cv.has && !cv.defaulted
		if present {
			v, present = e.convert(ctx, t, m, v)
			if !present {
				fromSource = false
			}
		}

		if !present {
			col := t.Column(m.TargetColumn)
			switch {
			case m.HasDefault:
				v = m.DefaultValue
			case col != nil && col.Required && col.HasDefault:
				v = col.Default
			case col != nil && col.Required:
				return nil, 0, etl.ErrMapping.New(t.Name, m.TargetColumn)
			default:
				// Omitted, the database default applies.
				continue
			}
		}

		row[m.TargetColumn] = v
		if fromSource && !e.identitySource(m) {
			substantive++
		}
	}
	return row, substantive, nil
}

func (e *Engine) identitySource(m *etl.FieldMapping) bool {
	if m.HasStep(etl.StepIdentityInsert) {
		return true
	}
	_, ok := e.identityAttrs[strings.ToLower(m.XMLAttribute)]
	return ok
}

// convert applies the mapping's declared type and length. A value the type
// cannot represent is dropped with a warning rather than failing the
// application; the omission rules then decide what happens to the column.
func (e *Engine) convert(ctx *etl.Context, t *etl.TableMapping, m *etl.FieldMapping, v interface{}) (interface{}, bool) {
	converted, err := m.Type.Convert(v)
	if err != nil {
		ctx.Warn(t.Name, m.TargetColumn,
			"cannot represent %v as %s, leaving the column unset", v, m.Type.Name())
		return nil, false
	}
	if converted == nil {
		return nil, false
	}
	if m.DataLength > 0 {
		if s, ok := converted.(string); ok && len(s) > m.DataLength {
			ctx.Warn(t.Name, m.TargetColumn,
				"value truncated from %d to %d characters", len(s), m.DataLength)
			converted = s[:m.DataLength]
		}
	}
	return converted, true
}
