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
	"math"

	"github.com/shopspring/decimal"

	"github.com/appsink/appsink/etl"
)

// Operator tokens of the arithmetic expressions.
const (
	PlusStr   = "+"
	MinusStr  = "-"
	MultStr   = "*"
	DivStr    = "/"
	IntDivStr = "//"
	ModStr    = "%"
	PowStr    = "**"
)

// Arithmetic expressions (+, -, *, /, //, %, **). Division by zero and
// operands with no numeric representation evaluate to null.
type Arithmetic struct {
	BinaryExpression
	Op string
}

// NewArithmetic creates a new Arithmetic expression.
func NewArithmetic(left, right etl.Expression, op string) *Arithmetic {
	return &Arithmetic{BinaryExpression{Left: left, Right: right}, op}
}

// NewPlus creates a new Arithmetic + expression.
func NewPlus(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, PlusStr)
}

// NewMinus creates a new Arithmetic - expression.
func NewMinus(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, MinusStr)
}

// NewMult creates a new Arithmetic * expression.
func NewMult(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, MultStr)
}

// NewDiv creates a new Arithmetic / expression.
func NewDiv(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, DivStr)
}

// NewIntDiv creates a new Arithmetic // expression.
func NewIntDiv(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, IntDivStr)
}

// NewMod creates a new Arithmetic % expression.
func NewMod(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, ModStr)
}

// NewPow creates a new Arithmetic ** expression.
func NewPow(left, right etl.Expression) *Arithmetic {
	return NewArithmetic(left, right, PowStr)
}

func (a *Arithmetic) String() string {
	return fmt.Sprintf("(%s %s %s)", a.Left, a.Op, a.Right)
}

// WithChildren implements the Expression interface.
func (a *Arithmetic) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 2 {
		return nil, etl.ErrInvalidChildrenNumber.New(a, len(children), 2)
	}
	return NewArithmetic(children[0], children[1], a.Op), nil
}

// Eval implements the Expression interface.
func (a *Arithmetic) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	lval, err := a.Left.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	rval, err := a.Right.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if lval == nil || rval == nil {
		return nil, nil
	}

	if a.Op == PlusStr {
		if ls, ok := lval.(string); ok {
			if rs, ok := rval.(string); ok {
				return ls + rs, nil
			}
		}
	}

	if ld, lok := toDecimal(lval); lok {
		if rd, rok := toDecimal(rval); rok {
			if _, isDec := lval.(decimal.Decimal); isDec {
				return a.evalDecimal(ld, rd)
			}
			if _, isDec := rval.(decimal.Decimal); isDec {
				return a.evalDecimal(ld, rd)
			}
		}
	}

	switch a.Op {
	case IntDivStr, ModStr:
		li, lok := toInt(lval)
		ri, rok := toInt(rval)
		if !lok || !rok || ri == 0 {
			return nil, nil
		}
		if a.Op == ModStr {
			return li % ri, nil
		}
		q := li / ri
		if li%ri != 0 && (li < 0) != (ri < 0) {
			q--
		}
		return q, nil
	}

	li, lInt := lval.(int64)
	ri, rInt := rval.(int64)
	if lInt && rInt {
		switch a.Op {
		case PlusStr:
			return li + ri, nil
		case MinusStr:
			return li - ri, nil
		case MultStr:
			return li * ri, nil
		}
	}

	lf, lok := toFloat(lval)
	rf, rok := toFloat(rval)
	if !lok || !rok {
		return nil, nil
	}

	switch a.Op {
	case PlusStr:
		return lf + rf, nil
	case MinusStr:
		return lf - rf, nil
	case MultStr:
		return lf * rf, nil
	case DivStr:
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	case PowStr:
		return math.Pow(lf, rf), nil
	}
	return nil, nil
}

func (a *Arithmetic) evalDecimal(l, r decimal.Decimal) (interface{}, error) {
	switch a.Op {
	case PlusStr:
		return l.Add(r), nil
	case MinusStr:
		return l.Sub(r), nil
	case MultStr:
		return l.Mul(r), nil
	case DivStr:
		if r.IsZero() {
			return nil, nil
		}
		return l.DivRound(r, 8), nil
	case IntDivStr:
		if r.IsZero() {
			return nil, nil
		}
		return l.DivRound(r, 8).Floor().IntPart(), nil
	case ModStr:
		if r.IsZero() {
			return nil, nil
		}
		return l.Mod(r), nil
	case PowStr:
		lf, _ := l.Float64()
		rf, _ := r.Float64()
		return math.Pow(lf, rf), nil
	}
	return nil, nil
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int64:
		return decimal.New(t, 0), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// UnaryMinus negates a numeric value.
type UnaryMinus struct {
	UnaryExpression
}

// NewUnaryMinus creates a new UnaryMinus expression.
func NewUnaryMinus(child etl.Expression) *UnaryMinus {
	return &UnaryMinus{UnaryExpression{Child: child}}
}

// Eval implements the Expression interface.
func (e *UnaryMinus) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	v, err := e.Child.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return -t, nil
	case float64:
		return -t, nil
	case decimal.Decimal:
		return t.Neg(), nil
	}
	if f, ok := toFloat(v); ok {
		return -f, nil
	}
	return nil, nil
}

// WithChildren implements the Expression interface.
func (e *UnaryMinus) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 1 {
		return nil, etl.ErrInvalidChildrenNumber.New(e, len(children), 1)
	}
	return NewUnaryMinus(children[0]), nil
}

func (e *UnaryMinus) String() string {
	return fmt.Sprintf("-%s", e.Child)
}
