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
	"strings"

	"github.com/appsink/appsink/etl"
)

// IsNull bridges null to a boolean. It never evaluates to null itself.
type IsNull struct {
	UnaryExpression
}

// NewIsNull creates a new IsNull expression.
func NewIsNull(child etl.Expression) *IsNull {
	return &IsNull{UnaryExpression{Child: child}}
}

// Eval implements the Expression interface.
func (e *IsNull) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	v, err := e.Child.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	return v == nil, nil
}

// WithChildren implements the Expression interface.
func (e *IsNull) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 1 {
		return nil, etl.ErrInvalidChildrenNumber.New(e, len(children), 1)
	}
	return NewIsNull(children[0]), nil
}

func (e *IsNull) String() string {
	return fmt.Sprintf("(%s IS NULL)", e.Child)
}

// IsEmpty is true for null values and for strings that are empty after
// trimming whitespace. It never evaluates to null itself.
type IsEmpty struct {
	UnaryExpression
}

// NewIsEmpty creates a new IsEmpty expression.
func NewIsEmpty(child etl.Expression) *IsEmpty {
	return &IsEmpty{UnaryExpression{Child: child}}
}

// Eval implements the Expression interface.
func (e *IsEmpty) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	v, err := e.Child.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return true, nil
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == "", nil
	}
	return false, nil
}

// WithChildren implements the Expression interface.
func (e *IsEmpty) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 1 {
		return nil, etl.ErrInvalidChildrenNumber.New(e, len(children), 1)
	}
	return NewIsEmpty(children[0]), nil
}

func (e *IsEmpty) String() string {
	return fmt.Sprintf("(%s IS EMPTY)", e.Child)
}
