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

	"github.com/stretchr/testify/require"

	"github.com/appsink/appsink/etl"
)

func TestCase(t *testing.T) {
	simple := NewCase(
		NewIdentifier("status"),
		[]CaseBranch{
			{Cond: NewLiteral("A"), Value: NewLiteral("active")},
			{Cond: NewLiteral("D"), Value: NewLiteral("declined")},
		},
		NewLiteral("unknown"),
	)

	searched := NewCase(
		nil,
		[]CaseBranch{
			{
				Cond:  NewGreaterThan(NewIdentifier("income"), NewLiteral(int64(100000))),
				Value: NewLiteral("high"),
			},
			{
				Cond:  NewGreaterThan(NewIdentifier("income"), NewLiteral(int64(30000))),
				Value: NewLiteral("medium"),
			},
		},
		NewLiteral("low"),
	)

	noElse := NewCase(
		NewIdentifier("status"),
		[]CaseBranch{
			{Cond: NewLiteral("A"), Value: NewLiteral(int64(1))},
		},
		nil,
	)

	testCases := []struct {
		name     string
		f        *Case
		row      etl.Row
		expected interface{}
	}{
		{"simple first branch", simple, etl.NewRow("status", "A"), "active"},
		{"simple second branch", simple, etl.NewRow("status", "D"), "declined"},
		{"simple folds case", simple, etl.NewRow("status", "a"), "active"},
		{"simple else", simple, etl.NewRow("status", "X"), "unknown"},
		{"simple null operand", simple, etl.NewRow(), "unknown"},
		{"searched first", searched, etl.NewRow("income", int64(250000)), "high"},
		{"searched second", searched, etl.NewRow("income", int64(50000)), "medium"},
		{"searched else", searched, etl.NewRow("income", int64(10000)), "low"},
		{"searched null operand", searched, etl.NewRow(), "low"},
		{"no else yields null", noElse, etl.NewRow("status", "X"), nil},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result := eval(t, tt.f, tt.row)
			require.Equal(tt.expected, result)
		})
	}
}

func TestCaseWithChildren(t *testing.T) {
	require := require.New(t)

	c := NewCase(
		NewIdentifier("status"),
		[]CaseBranch{
			{Cond: NewLiteral("A"), Value: NewLiteral(int64(1))},
		},
		NewLiteral(int64(0)),
	)

	children := c.Children()
	require.Len(children, 4)

	rebuilt, err := c.WithChildren(children...)
	require.NoError(err)
	require.Equal(c, rebuilt)

	_, err = c.WithChildren(children[:2]...)
	require.Error(err)
	require.True(etl.ErrInvalidChildrenNumber.Is(err))
}
