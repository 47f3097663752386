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

package mapper

import (
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/appsink/appsink/etl"
)

// Filter applies the contract's element filtering rules to a document.
type Filter struct {
	contract *etl.Contract
}

// NewFilter returns a Filter for one contract.
func NewFilter(c *etl.Contract) *Filter {
	return &Filter{contract: c}
}

// Elements selects, rejects and deduplicates the elements of one logical
// type. Contacts dedupe on the rule's identity attribute, keeping the
// occurrence whose type attribute ranks highest in the priority order and
// breaking ties with the textually last occurrence. Contact children dedupe
// on the inherited contact identity plus their own type attribute. Missing
// elements yield an empty slice, never an error.
func (f *Filter) Elements(doc *Document, elementType string) ([]*xmlquery.Node, error) {
	rule := f.contract.Rule(elementType)
	if rule == nil {
		return nil, nil
	}

	nodes, err := doc.Select(rule.XPath)
	if err != nil {
		return nil, err
	}

	accepted := nodes[:0:0]
	for _, n := range nodes {
		if satisfies(n, rule) {
			accepted = append(accepted, n)
		}
	}

	if rule.IdentityAttribute == "" {
		return accepted, nil
	}

	child := !strings.EqualFold(elementType, etl.ElementContact) && f.contract.ContactRule() != nil

	type winner struct {
		node     *xmlquery.Node
		priority int
	}
	best := map[string]*winner{}
	var keys []string
	for i, n := range accepted {
		typeValue, _ := Attr(n, rule.TypeAttribute)
		key, ok := Attr(n, rule.IdentityAttribute)
		if child {
			// Children are one-per-type under their contact; the type
			// attribute joins the key and the contact identity replaces
			// the element's own.
			key = f.ContactIdentity(n) + "\x00" + strings.ToLower(typeValue)
			ok = true
		}
		if !ok {
			// No identity to collapse on, keep the occurrence as is.
			key = "\x00anon\x00" + strconv.Itoa(i)
		}
		cand := &winner{node: n, priority: rule.Priority(typeValue)}
		cur, seen := best[key]
		if !seen {
			best[key] = cand
			keys = append(keys, key)
			continue
		}
		// Scanning in document order, a better or equal priority means the
		// later occurrence wins.
		if cand.priority <= cur.priority {
			best[key] = cand
		}
	}

	out := make([]*xmlquery.Node, 0, len(keys))
	for _, k := range keys {
		out = append(out, best[k].node)
	}
	return out, nil
}

// ContactIdentity returns the identity of the contact an element belongs to,
// read off the nearest ancestor carrying the contact rule's identity
// attribute. Empty when the element has no contact ancestor.
func (f *Filter) ContactIdentity(n *xmlquery.Node) string {
	rule := f.contract.ContactRule()
	if rule == nil {
		return ""
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != xmlquery.ElementNode {
			continue
		}
		if id, ok := Attr(p, rule.IdentityAttribute); ok {
			return id
		}
	}
	return ""
}

// satisfies checks a rule's required attributes: each must be present and
// non-blank, and when the rule enumerates allowed values the attribute must
// match one case-insensitively.
func satisfies(n *xmlquery.Node, rule *etl.FilterRule) bool {
	for name, allowed := range rule.RequiredAttributes {
		v, ok := Attr(n, name)
		if !ok {
			return false
		}
		if len(allowed) == 0 {
			continue
		}
		match := false
		for _, a := range allowed {
			if strings.EqualFold(a, v) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// Contacts is the materialized view of an application's surviving contacts.
type Contacts struct {
	// All surviving contacts in document order.
	All []*xmlquery.Node
	// Primary and Secondary are the last surviving contact of the first
	// and second priority types. Either may be nil.
	Primary   *xmlquery.Node
	Secondary *xmlquery.Node

	byID map[string]*xmlquery.Node
}

// ByIdentity returns the surviving contact with the given identity value.
func (c *Contacts) ByIdentity(id string) (*xmlquery.Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// Contacts filters and materializes the document's contacts. Contacts with
// none of the meaningful fields populated are suppressed with a warning;
// placeholder-only rows would trip NOT NULL constraints downstream.
func (f *Filter) Contacts(ctx *etl.Context, doc *Document) (*Contacts, error) {
	rule := f.contract.ContactRule()
	out := &Contacts{byID: map[string]*xmlquery.Node{}}
	if rule == nil {
		return out, nil
	}

	filtered, err := f.Elements(doc, etl.ElementContact)
	if err != nil {
		return nil, err
	}

	fields := f.contract.MeaningfulFields()
	for _, n := range filtered {
		if !meaningfulContact(n, fields) {
			id, _ := Attr(n, rule.IdentityAttribute)
			ctx.Warn("", "", "contact %s suppressed: none of %s populated",
				id, strings.Join(fields, ", "))
			continue
		}
		out.All = append(out.All, n)
		if id, ok := Attr(n, rule.IdentityAttribute); ok {
			out.byID[id] = n
		}
		typeValue, _ := Attr(n, rule.TypeAttribute)
		switch {
		case len(rule.PriorityOrder) > 0 && strings.EqualFold(typeValue, rule.PriorityOrder[0]):
			out.Primary = n
		case len(rule.PriorityOrder) > 1 && strings.EqualFold(typeValue, rule.PriorityOrder[1]):
			out.Secondary = n
		}
	}
	return out, nil
}

func meaningfulContact(n *xmlquery.Node, fields []string) bool {
	for _, f := range fields {
		if _, ok := Attr(n, f); ok {
			return true
		}
	}
	return false
}
