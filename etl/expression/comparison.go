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

// Comparison is an expression that compares an expression against another.
// Null operands make the comparison null; values with no common
// representation compare unequal.
type Comparison struct {
	BinaryExpression
	Op string
}

// Comparison operator tokens.
const (
	EqStr  = "="
	NeqStr = "!="
	LtStr  = "<"
	GtStr  = ">"
	LteStr = "<="
	GteStr = ">="
)

// NewComparison creates a new comparison between two expressions.
func NewComparison(left, right etl.Expression, op string) *Comparison {
	return &Comparison{BinaryExpression{Left: left, Right: right}, op}
}

// NewEquals creates a new = comparison.
func NewEquals(left, right etl.Expression) *Comparison {
	return NewComparison(left, right, EqStr)
}

// NewNotEquals creates a new != comparison.
func NewNotEquals(left, right etl.Expression) *Comparison {
	return NewComparison(left, right, NeqStr)
}

// NewLessThan creates a new < comparison.
func NewLessThan(left, right etl.Expression) *Comparison {
	return NewComparison(left, right, LtStr)
}

// NewGreaterThan creates a new > comparison.
func NewGreaterThan(left, right etl.Expression) *Comparison {
	return NewComparison(left, right, GtStr)
}

// NewLessThanOrEqual creates a new <= comparison.
func NewLessThanOrEqual(left, right etl.Expression) *Comparison {
	return NewComparison(left, right, LteStr)
}

// NewGreaterThanOrEqual creates a new >= comparison.
func NewGreaterThanOrEqual(left, right etl.Expression) *Comparison {
	return NewComparison(left, right, GteStr)
}

// Eval implements the Expression interface.
func (c *Comparison) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	a, err := c.Left.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	b, err := c.Right.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}

	cmp, ok := compare(a, b)
	if !ok {
		return c.Op == NeqStr, nil
	}

	switch c.Op {
	case EqStr:
		return cmp == 0, nil
	case NeqStr:
		return cmp != 0, nil
	case LtStr:
		return cmp < 0, nil
	case GtStr:
		return cmp > 0, nil
	case LteStr:
		return cmp <= 0, nil
	case GteStr:
		return cmp >= 0, nil
	}
	return nil, nil
}

// WithChildren implements the Expression interface.
func (c *Comparison) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 2 {
		return nil, etl.ErrInvalidChildrenNumber.New(c, len(children), 2)
	}
	return NewComparison(children[0], children[1], c.Op), nil
}

func (c *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}
