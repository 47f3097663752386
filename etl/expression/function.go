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
	"time"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/internal/similartext"
)

var (
	// ErrFunctionNotFound is returned when an expression calls a function
	// this engine does not implement.
	ErrFunctionNotFound = errors.NewKind("unknown function %q%s")

	// ErrFunctionArity is returned when a function is called with the
	// wrong number of arguments.
	ErrFunctionArity = errors.NewKind("function %s expects %d arguments, got %d")

	// ErrDateAddUnit is returned for an unsupported DATEADD unit.
	ErrDateAddUnit = errors.NewKind("unsupported DATEADD unit %q")
)

var functionNames = map[string]struct{}{
	"date":       {},
	"dateadd":    {},
	"getutcdate": {},
}

// NewFunction instantiates a function call by name. Unknown names and bad
// arities fail at parse time.
func NewFunction(name string, args ...etl.Expression) (etl.Expression, error) {
	switch strings.ToLower(name) {
	case "date":
		if len(args) != 1 {
			return nil, ErrFunctionArity.New("DATE", 1, len(args))
		}
		return NewDate(args[0]), nil
	case "dateadd":
		if len(args) != 3 {
			return nil, ErrFunctionArity.New("DATEADD", 3, len(args))
		}
		unit, ok := unitArg(args[0])
		if !ok {
			return nil, ErrDateAddUnit.New(args[0].String())
		}
		return NewDateAdd(unit, args[1], args[2])
	case "getutcdate":
		if len(args) != 0 {
			return nil, ErrFunctionArity.New("GETUTCDATE", 0, len(args))
		}
		return NewGetUTCDate(), nil
	}
	similar := similartext.FindFromMap(functionNames, strings.ToLower(name))
	return nil, ErrFunctionNotFound.New(name, similar)
}

// unitArg extracts a DATEADD unit keyword, written either bare (day) or
// quoted ('day').
func unitArg(e etl.Expression) (string, bool) {
	switch t := e.(type) {
	case *Identifier:
		return t.Name(), true
	case *Literal:
		if s, ok := t.Value().(string); ok {
			return s, true
		}
	}
	return "", false
}

// Date converts its argument through the tolerant date parser, yielding a
// midnight UTC timestamp.
type Date struct {
	UnaryExpression
}

// NewDate creates a new DATE function call.
func NewDate(child etl.Expression) *Date {
	return &Date{UnaryExpression{Child: child}}
}

// Eval implements the Expression interface.
func (d *Date) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	v, err := d.Child.Eval(ctx, row)
	if err != nil || v == nil {
		return nil, err
	}
	converted, err := etl.Date.Convert(v)
	if err != nil {
		return nil, nil
	}
	return converted, nil
}

// WithChildren implements the Expression interface.
func (d *Date) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 1 {
		return nil, etl.ErrInvalidChildrenNumber.New(d, len(children), 1)
	}
	return NewDate(children[0]), nil
}

func (d *Date) String() string {
	return fmt.Sprintf("DATE(%s)", d.Child)
}

// DateAdd shifts a date by n units.
type DateAdd struct {
	Unit string
	N    etl.Expression
	Date etl.Expression
}

var dateAddUnits = map[string]struct{}{
	"day": {}, "week": {}, "month": {}, "year": {},
	"hour": {}, "minute": {}, "second": {},
}

// NewDateAdd creates a new DATEADD function call. The unit is validated at
// construction.
func NewDateAdd(unit string, n, date etl.Expression) (*DateAdd, error) {
	unit = strings.ToLower(unit)
	if _, ok := dateAddUnits[unit]; !ok {
		return nil, ErrDateAddUnit.New(unit)
	}
	return &DateAdd{Unit: unit, N: n, Date: date}, nil
}

// Eval implements the Expression interface.
func (d *DateAdd) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	nv, err := d.N.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	dv, err := d.Date.Eval(ctx, row)
	if err != nil {
		return nil, err
	}
	if nv == nil || dv == nil {
		return nil, nil
	}

	n, ok := toInt(nv)
	if !ok {
		return nil, nil
	}
	converted, err := etl.Datetime.Convert(dv)
	if err != nil || converted == nil {
		return nil, nil
	}
	t := converted.(time.Time)

	switch d.Unit {
	case "day":
		return t.AddDate(0, 0, int(n)), nil
	case "week":
		return t.AddDate(0, 0, int(n)*7), nil
	case "month":
		return t.AddDate(0, int(n), 0), nil
	case "year":
		return t.AddDate(int(n), 0, 0), nil
	case "hour":
		return t.Add(time.Duration(n) * time.Hour), nil
	case "minute":
		return t.Add(time.Duration(n) * time.Minute), nil
	case "second":
		return t.Add(time.Duration(n) * time.Second), nil
	}
	return nil, nil
}

// Children implements the Expression interface.
func (d *DateAdd) Children() []etl.Expression {
	return []etl.Expression{d.N, d.Date}
}

// WithChildren implements the Expression interface.
func (d *DateAdd) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 2 {
		return nil, etl.ErrInvalidChildrenNumber.New(d, len(children), 2)
	}
	return NewDateAdd(d.Unit, children[0], children[1])
}

func (d *DateAdd) String() string {
	return fmt.Sprintf("DATEADD(%s, %s, %s)", d.Unit, d.N, d.Date)
}

// GetUTCDate returns the current UTC timestamp.
type GetUTCDate struct{}

// NewGetUTCDate creates a new GETUTCDATE function call.
func NewGetUTCDate() *GetUTCDate { return &GetUTCDate{} }

// Eval implements the Expression interface.
func (*GetUTCDate) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	return time.Now().UTC(), nil
}

// Children implements the Expression interface.
func (*GetUTCDate) Children() []etl.Expression { return nil }

// WithChildren implements the Expression interface.
func (g *GetUTCDate) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 0 {
		return nil, etl.ErrInvalidChildrenNumber.New(g, len(children), 0)
	}
	return g, nil
}

func (*GetUTCDate) String() string { return "GETUTCDATE()" }
