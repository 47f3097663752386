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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/appsink/appsink/etl"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPlus(t *testing.T) {
	testCases := []struct {
		name        string
		left, right interface{}
		expected    interface{}
	}{
		{"int int", int64(1), int64(2), int64(3)},
		{"float float", 1.5, 2.25, 3.75},
		{"int float", int64(1), 2.5, 3.5},
		{"string concat", "net ", "30", "net 30"},
		{"numeric string and int", "4", int64(2), float64(6)},
		{"left null", nil, int64(2), nil},
		{"right null", int64(1), nil, nil},
		{"non numeric", int64(1), true, float64(2)},
		{"unparseable", int64(1), "abc", nil},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result := eval(t, NewPlus(NewLiteral(tt.left), NewLiteral(tt.right)), nil)
			require.Equal(tt.expected, result)
		})
	}
}

func TestPlusDecimal(t *testing.T) {
	require := require.New(t)

	result := eval(t, NewPlus(NewLiteral(dec("1.10")), NewLiteral(dec("2.20"))), nil)
	d, ok := result.(decimal.Decimal)
	require.True(ok)
	require.True(d.Equal(dec("3.30")))

	// Mixed operands promote to decimal when either side is one.
	result = eval(t, NewPlus(NewLiteral(dec("0.1")), NewLiteral(int64(1))), nil)
	d, ok = result.(decimal.Decimal)
	require.True(ok)
	require.True(d.Equal(dec("1.1")))
}

func TestMinus(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(3), eval(t, NewMinus(NewLiteral(int64(5)), NewLiteral(int64(2))), nil))
	require.Equal(2.5, eval(t, NewMinus(NewLiteral(5.0), NewLiteral(2.5)), nil))
	require.Nil(eval(t, NewMinus(NewLiteral(nil), NewLiteral(int64(2))), nil))
}

func TestMult(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(12), eval(t, NewMult(NewLiteral(int64(3)), NewLiteral(int64(4))), nil))
	require.Equal(10.0, eval(t, NewMult(NewLiteral("4"), NewLiteral("2.5")), nil))
	require.Nil(eval(t, NewMult(NewLiteral("x"), NewLiteral(int64(4))), nil))
}

func TestDiv(t *testing.T) {
	require := require.New(t)

	require.Equal(3.5, eval(t, NewDiv(NewLiteral(int64(7)), NewLiteral(int64(2))), nil))
	require.Equal(2.0, eval(t, NewDiv(NewLiteral(5.0), NewLiteral(2.5)), nil))

	// Division by zero is null, not an error.
	require.Nil(eval(t, NewDiv(NewLiteral(int64(1)), NewLiteral(int64(0))), nil))
	require.Nil(eval(t, NewDiv(NewLiteral(1.0), NewLiteral(0.0)), nil))
}

func TestDivDecimal(t *testing.T) {
	require := require.New(t)

	result := eval(t, NewDiv(NewLiteral(dec("1")), NewLiteral(dec("3"))), nil)
	d, ok := result.(decimal.Decimal)
	require.True(ok)
	require.Equal("0.33333333", d.String())

	require.Nil(eval(t, NewDiv(NewLiteral(dec("1")), NewLiteral(dec("0"))), nil))
}

func TestIntDiv(t *testing.T) {
	testCases := []struct {
		name        string
		left, right interface{}
		expected    interface{}
	}{
		{"exact", int64(8), int64(2), int64(4)},
		{"truncating", int64(7), int64(2), int64(3)},
		{"negative floors", int64(-7), int64(2), int64(-4)},
		{"zero divisor", int64(7), int64(0), nil},
		{"float operands", 7.9, int64(2), int64(3)},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result := eval(t, NewIntDiv(NewLiteral(tt.left), NewLiteral(tt.right)), nil)
			require.Equal(tt.expected, result)
		})
	}
}

func TestMod(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(1), eval(t, NewMod(NewLiteral(int64(7)), NewLiteral(int64(3))), nil))
	require.Equal(int64(0), eval(t, NewMod(NewLiteral(int64(9)), NewLiteral(int64(3))), nil))
	require.Nil(eval(t, NewMod(NewLiteral(int64(7)), NewLiteral(int64(0))), nil))
}

func TestPow(t *testing.T) {
	require := require.New(t)

	require.Equal(1024.0, eval(t, NewPow(NewLiteral(int64(2)), NewLiteral(int64(10))), nil))
	require.Equal(3.0, eval(t, NewPow(NewLiteral(9.0), NewLiteral(0.5)), nil))
}

func TestUnaryMinus(t *testing.T) {
	testCases := []struct {
		name     string
		value    interface{}
		expected interface{}
	}{
		{"int", int64(5), int64(-5)},
		{"float", 2.5, -2.5},
		{"numeric string", "3.5", -3.5},
		{"null", nil, nil},
		{"non numeric", "abc", nil},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result := eval(t, NewUnaryMinus(NewLiteral(tt.value)), nil)
			require.Equal(tt.expected, result)
		})
	}
}

func TestUnaryMinusDecimal(t *testing.T) {
	require := require.New(t)

	result := eval(t, NewUnaryMinus(NewLiteral(dec("1.25"))), nil)
	d, ok := result.(decimal.Decimal)
	require.True(ok)
	require.True(d.Equal(dec("-1.25")))
}

func TestArithmeticEvalsIdentifiers(t *testing.T) {
	require := require.New(t)

	row := etl.NewRow("income", int64(4000), "months", int64(12))
	result := eval(t, NewMult(NewIdentifier("income"), NewIdentifier("months")), row)
	require.Equal(int64(48000), result)

	// Identifiers missing from the row are null and poison the result.
	result = eval(t, NewMult(NewIdentifier("income"), NewIdentifier("bonus")), row)
	require.Nil(result)
}

func TestArithmeticWithChildren(t *testing.T) {
	require := require.New(t)

	e := NewPlus(NewLiteral(int64(1)), NewLiteral(int64(2)))
	swapped, err := e.WithChildren(NewLiteral(int64(3)), NewLiteral(int64(4)))
	require.NoError(err)
	require.Equal(int64(7), eval(t, swapped, nil))

	_, err = e.WithChildren(NewLiteral(int64(1)))
	require.Error(err)
	require.True(etl.ErrInvalidChildrenNumber.Is(err))
}
