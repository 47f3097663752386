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
	"bytes"

	"github.com/appsink/appsink/etl"
)

// CaseBranch is a single WHEN/THEN branch of a case expression.
type CaseBranch struct {
	Cond  etl.Expression
	Value etl.Expression
}

// Case returns the value of the first branch whose condition is met, the
// ELSE value otherwise, and null without an ELSE. The simple form
// (CASE expr WHEN v ...) compares expr against each branch condition.
type Case struct {
	Expr     etl.Expression
	Branches []CaseBranch
	Else     etl.Expression
}

// NewCase returns a new Case expression.
func NewCase(expr etl.Expression, branches []CaseBranch, elseExpr etl.Expression) *Case {
	return &Case{expr, branches, elseExpr}
}

// Eval implements the Expression interface.
func (c *Case) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	span, ctx := ctx.Span("expression.Case")
	defer span.Finish()

	var expr interface{}
	var err error
	if c.Expr != nil {
		expr, err = c.Expr.Eval(ctx, row)
		if err != nil {
			return nil, err
		}
	}

	for _, b := range c.Branches {
		var matched bool
		if c.Expr != nil {
			cond, cerr := b.Cond.Eval(ctx, row)
			if cerr != nil {
				return nil, cerr
			}
			if expr == nil || cond == nil {
				continue
			}
			cmp, ok := compare(expr, cond)
			matched = ok && cmp == 0
		} else {
			v, cerr := b.Cond.Eval(ctx, row)
			if cerr != nil {
				return nil, cerr
			}
			matched = asBool(v)
		}

		if matched {
			return b.Value.Eval(ctx, row)
		}
	}

	if c.Else != nil {
		return c.Else.Eval(ctx, row)
	}
	return nil, nil
}

// Children implements the Expression interface.
func (c *Case) Children() []etl.Expression {
	var children []etl.Expression

	if c.Expr != nil {
		children = append(children, c.Expr)
	}

	for _, b := range c.Branches {
		children = append(children, b.Cond, b.Value)
	}

	if c.Else != nil {
		children = append(children, c.Else)
	}

	return children
}

// WithChildren implements the Expression interface.
func (c *Case) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	var expected = len(c.Branches) * 2
	if c.Expr != nil {
		expected++
	}
	if c.Else != nil {
		expected++
	}

	if len(children) != expected {
		return nil, etl.ErrInvalidChildrenNumber.New(c, len(children), expected)
	}

	var expr, elseExpr etl.Expression
	if c.Expr != nil {
		expr = children[0]
		children = children[1:]
	}
	if c.Else != nil {
		elseExpr = children[len(children)-1]
		children = children[:len(children)-1]
	}

	var branches []CaseBranch
	for i := 0; i < len(children); i += 2 {
		branches = append(branches, CaseBranch{
			Cond:  children[i],
			Value: children[i+1],
		})
	}

	return NewCase(expr, branches, elseExpr), nil
}

func (c *Case) String() string {
	var buf bytes.Buffer

	buf.WriteString("CASE")
	if c.Expr != nil {
		buf.WriteString(" ")
		buf.WriteString(c.Expr.String())
	}

	for _, b := range c.Branches {
		buf.WriteString(" WHEN ")
		buf.WriteString(b.Cond.String())
		buf.WriteString(" THEN ")
		buf.WriteString(b.Value.String())
	}

	if c.Else != nil {
		buf.WriteString(" ELSE ")
		buf.WriteString(c.Else.String())
	}

	buf.WriteString(" END")
	return buf.String()
}
