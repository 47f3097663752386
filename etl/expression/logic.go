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

// And implements the AND logical expression with three-valued semantics:
// false dominates null.
type And struct {
	BinaryExpression
}

// NewAnd creates a new And expression.
func NewAnd(left, right etl.Expression) *And {
	return &And{BinaryExpression{Left: left, Right: right}}
}

// Eval implements the Expression interface.
func (a *And) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	lval, err := a.Left.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if lval != nil && !asBool(lval) {
		return false, nil
	}

	rval, err := a.Right.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if rval != nil && !asBool(rval) {
		return false, nil
	}

	if lval == nil || rval == nil {
		return nil, nil
	}
	return true, nil
}

// WithChildren implements the Expression interface.
func (a *And) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 2 {
		return nil, etl.ErrInvalidChildrenNumber.New(a, len(children), 2)
	}
	return NewAnd(children[0], children[1]), nil
}

func (a *And) String() string {
	return fmt.Sprintf("(%s AND %s)", a.Left, a.Right)
}

// Or implements the OR logical expression with three-valued semantics: true
// dominates null.
type Or struct {
	BinaryExpression
}

// NewOr creates a new Or expression.
func NewOr(left, right etl.Expression) *Or {
	return &Or{BinaryExpression{Left: left, Right: right}}
}

// Eval implements the Expression interface.
func (o *Or) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	lval, err := o.Left.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if lval != nil && asBool(lval) {
		return true, nil
	}

	rval, err := o.Right.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if rval != nil && asBool(rval) {
		return true, nil
	}

	if lval == nil || rval == nil {
		return nil, nil
	}
	return false, nil
}

// WithChildren implements the Expression interface.
func (o *Or) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 2 {
		return nil, etl.ErrInvalidChildrenNumber.New(o, len(children), 2)
	}
	return NewOr(children[0], children[1]), nil
}

func (o *Or) String() string {
	return fmt.Sprintf("(%s OR %s)", o.Left, o.Right)
}

// Not negates a condition. NOT null is null.
type Not struct {
	UnaryExpression
}

// NewNot creates a new Not expression.
func NewNot(child etl.Expression) *Not {
	return &Not{UnaryExpression{Child: child}}
}

// Eval implements the Expression interface.
func (n *Not) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	v, err := n.Child.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return !asBool(v), nil
}

// WithChildren implements the Expression interface.
func (n *Not) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 1 {
		return nil, etl.ErrInvalidChildrenNumber.New(n, len(children), 1)
	}
	return NewNot(children[0]), nil
}

func (n *Not) String() string {
	return fmt.Sprintf("NOT %s", n.Child)
}
