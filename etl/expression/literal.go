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

package expression

import (
	"fmt"

	"github.com/appsink/appsink/etl"
)

// Literal is a constant value.
type Literal struct {
	value interface{}
}

// NewLiteral creates a new Literal expression.
func NewLiteral(value interface{}) *Literal {
	return &Literal{value: value}
}

// Value returns the literal's value.
func (l *Literal) Value() interface{} { return l.value }

// Eval implements the Expression interface.
func (l *Literal) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	return l.value, nil
}

// Children implements the Expression interface.
func (*Literal) Children() []etl.Expression { return nil }

// WithChildren implements the Expression interface.
func (l *Literal) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 0 {
		return nil, etl.ErrInvalidChildrenNumber.New(l, len(children), 0)
	}
	return l, nil
}

func (l *Literal) String() string {
	switch t := l.value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + t + "'"
	default:
		return fmt.Sprint(t)
	}
}

// Identifier resolves a name against the application's flattened context.
// Unknown names evaluate to null, never to an error.
type Identifier struct {
	name string
}

// NewIdentifier creates a new Identifier expression.
func NewIdentifier(name string) *Identifier {
	return &Identifier{name: name}
}

// Name returns the identifier text.
func (i *Identifier) Name() string { return i.name }

// Eval implements the Expression interface.
func (i *Identifier) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	v, ok := row[i.name]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Children implements the Expression interface.
func (*Identifier) Children() []etl.Expression { return nil }

// WithChildren implements the Expression interface.
func (i *Identifier) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 0 {
		return nil, etl.ErrInvalidChildrenNumber.New(i, len(children), 0)
	}
	return i, nil
}

func (i *Identifier) String() string { return i.name }
