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
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/appsink/appsink/etl"
)

// App ids are 32-bit positive integers on the destination side.
const (
	MinAppID = 1
	MaxAppID = 999_999_999
)

// ValidationResult is the verdict on one application's XML before any
// mapping work is attempted.
type ValidationResult struct {
	CanProcess    bool
	AppID         int64
	ValidContacts []*xmlquery.Node
	Errors        []string
	Warnings      []string

	// Doc carries the parsed document so the mapping engine does not parse
	// twice. Nil when the XML is malformed.
	Doc *Document
}

// Reason flattens the errors into one failure reason for the processing log.
func (r *ValidationResult) Reason() string {
	return strings.Join(r.Errors, "; ")
}

func (r *ValidationResult) fail(format string, args ...interface{}) *ValidationResult {
	r.CanProcess = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	return r
}

// Validator decides whether an application can be processed: the XML parses,
// the application identifier is present and in range, and at least one
// contact of the primary type survives filtering.
type Validator struct {
	contract *etl.Contract
	filter   *Filter
}

// NewValidator returns a Validator for one contract.
func NewValidator(c *etl.Contract) *Validator {
	return &Validator{contract: c, filter: NewFilter(c)}
}

// Validate checks raw XML bytes. Application-level problems land in the
// result with CanProcess false; the returned error is reserved for contract
// defects that would fail every application.
func (v *Validator) Validate(ctx *etl.Context, raw []byte) (*ValidationResult, error) {
	res := &ValidationResult{}

	doc, err := ParseDocument(raw)
	if err != nil {
		return res.fail("%s", err.Error()), nil
	}
	res.Doc = doc

	key, ok := v.contract.AppIDKey()
	if !ok {
		return nil, etl.ErrContractInvalid.New("key_identifiers.app_id is required")
	}
	text, ok := doc.Identifier(key)
	if !ok {
		return res.fail("no application id at %s@%s", key.XMLPath, key.XMLAttribute), nil
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return res.fail("application id %q is not numeric", text), nil
	}
	if id < MinAppID || id > MaxAppID {
		return res.fail("application id %d outside [%d, %d]", id, MinAppID, MaxAppID), nil
	}
	res.AppID = id

	rule := v.contract.ContactRule()
	if rule == nil {
		res.CanProcess = true
		return res, nil
	}

	contacts, err := v.filter.Elements(doc, etl.ElementContact)
	if err != nil {
		return nil, err
	}
	res.ValidContacts = contacts

	primary := v.contract.PrimaryContactType()
	for _, c := range contacts {
		if t, ok := Attr(c, rule.TypeAttribute); ok && strings.EqualFold(t, primary) {
			res.CanProcess = true
			return res, nil
		}
	}
	return res.fail("no valid %s contact after filtering", primary), nil
}
