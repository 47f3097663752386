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
	"bytes"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/appsink/appsink/etl"
)

// Contract XPaths repeat for every application in a run, so compiled
// expressions are cached process-wide.
var xpathCache sync.Map

func compileXPath(path string) (*xpath.Expr, error) {
	if e, ok := xpathCache.Load(path); ok {
		return e.(*xpath.Expr), nil
	}
	e, err := xpath.Compile(path)
	if err != nil {
		return nil, err
	}
	xpathCache.Store(path, e)
	return e, nil
}

// Document is one parsed application blob. Selection is XPath based because
// the contract locates everything by XPath; xmlquery also absorbs the
// encoding declarations staging blobs arrive with.
type Document struct {
	top *xmlquery.Node
}

// ParseDocument parses raw XML bytes. Malformed input is a validation
// failure for the application, never a panic.
func ParseDocument(data []byte) (*Document, error) {
	top, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, etl.ErrValidation.New("malformed XML: " + err.Error())
	}
	return &Document{top: top}, nil
}

// Root returns the document's root element, nil for an element-free
// document.
func (d *Document) Root() *xmlquery.Node {
	for n := d.top.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// Select returns every element matching an XPath expression, in document
// order. A bad expression is a contract defect and fatal to the run.
func (d *Document) Select(path string) ([]*xmlquery.Node, error) {
	expr, err := compileXPath(path)
	if err != nil {
		return nil, etl.ErrContractInvalid.New("bad xpath " + path + ": " + err.Error())
	}
	return xmlquery.QuerySelectorAll(d.top, expr), nil
}

// First returns the first element matching an XPath expression, nil when
// nothing matches.
func (d *Document) First(path string) (*xmlquery.Node, error) {
	nodes, err := d.Select(path)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// Identifier reads a scalar identifier from the document. The second return
// value is false when the element or the attribute is missing or blank.
func (d *Document) Identifier(key etl.KeyIdentifier) (string, bool) {
	n, err := d.First(key.XMLPath)
	if err != nil || n == nil {
		return "", false
	}
	return Attr(n, key.XMLAttribute)
}

// Attr reads an attribute off an element, trimmed. Lookup is exact first and
// case-insensitive second; source systems are not consistent about attribute
// casing. Blank values count as absent.
func Attr(n *xmlquery.Node, name string) (string, bool) {
	if n == nil || name == "" {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return trimmedAttr(a.Value)
		}
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return trimmedAttr(a.Value)
		}
	}
	return "", false
}

func trimmedAttr(v string) (string, bool) {
	v = strings.TrimSpace(v)
	return v, v != ""
}
