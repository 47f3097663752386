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

// Package expression holds the AST nodes of the calculated-field language.
// Nodes are immutable; evaluation is side-effect free and tolerant: operands
// that cannot be represented numerically yield null instead of failing the
// application.
package expression

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/appsink/appsink/etl"
)

// IsUnary returns whether the expression is unary or not.
func IsUnary(e etl.Expression) bool {
	return len(e.Children()) == 1
}

// IsBinary returns whether the expression is binary or not.
func IsBinary(e etl.Expression) bool {
	return len(e.Children()) == 2
}

// UnaryExpression is an expression that has only one child.
type UnaryExpression struct {
	Child etl.Expression
}

// Children implements the Expression interface.
func (p *UnaryExpression) Children() []etl.Expression {
	return []etl.Expression{p.Child}
}

// BinaryExpression is an expression that has two children.
type BinaryExpression struct {
	Left  etl.Expression
	Right etl.Expression
}

// Children implements the Expression interface.
func (p *BinaryExpression) Children() []etl.Expression {
	return []etl.Expression{p.Left, p.Right}
}

// toFloat coerces an evaluated value into a float64. The second return value
// is false when the value has no numeric representation.
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case decimal.Decimal:
		f, _ := t.Float64()
		return f, true
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// toInt coerces an evaluated value into an int64.
func toInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case decimal.Decimal:
		return t.IntPart(), true
	case float64:
		return int64(t), true
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false
		}
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil {
			return 0, false
		}
		return int64(f), true
	}
	return i, true
}

// compare orders two non-nil values: -1, 0 or 1. Numbers compare
// numerically; dates compare as instants; everything else compares as
// case-insensitive text. The second return value is false when no common
// representation exists.
func compare(a, b interface{}) (int, bool) {
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			}
			return 0, true
		}
	}

	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr || !bStr {
		if af, aok := toFloat(a); aok {
			if bf, bok := toFloat(b); bok {
				switch {
				case af < bf:
					return -1, true
				case af > bf:
					return 1, true
				}
				return 0, true
			}
		}
	}

	as, aerr := cast.ToStringE(a)
	bs, berr := cast.ToStringE(b)
	if aerr != nil || berr != nil {
		return 0, false
	}
	return strings.Compare(strings.ToLower(as), strings.ToLower(bs)), true
}

// asBool bridges an evaluated value to a condition outcome. Null is false.
func asBool(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return false
}
