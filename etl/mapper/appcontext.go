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
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/appsink/appsink/etl"
)

// appContext flattens a document into the row calculated fields evaluate
// against: the root element's attributes, the attributes of children that
// occur exactly once under the root (both bare and dotted by tag name), and
// a dotted "contact." aggregate over the primary contact. Values stay raw
// strings; the evaluator folds numeric strings on demand.
func appContext(doc *Document, contacts *Contacts) etl.Row {
	row := etl.Row{}
	root := doc.Root()
	if root == nil {
		return row
	}

	for _, a := range root.Attr {
		bind(row, a.Name.Local, a.Value, false)
	}

	counts := map[string]int{}
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			counts[n.Data]++
		}
	}
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xmlquery.ElementNode || counts[n.Data] != 1 {
			continue
		}
		for _, a := range n.Attr {
			bind(row, n.Data+"."+a.Name.Local, a.Value, false)
			// Bare names never shadow the root's own attributes.
			bind(row, a.Name.Local, a.Value, true)
		}
	}

	if contacts != nil && contacts.Primary != nil {
		for _, a := range contacts.Primary.Attr {
			bind(row, "contact."+a.Name.Local, a.Value, false)
		}
	}
	return row
}

// bind registers a context value under its authored name and its lowercase
// form; expression identifiers resolve by exact match and contracts are
// written in lowercase regardless of the XML's casing.
func bind(row etl.Row, name, value string, keepExisting bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	for _, k := range []string{name, strings.ToLower(name)} {
		if _, ok := row[k]; ok && keepExisting {
			continue
		}
		row[k] = value
	}
}
