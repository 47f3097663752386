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

func TestLiteral(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(42), eval(t, NewLiteral(int64(42)), nil))
	require.Equal("foo", eval(t, NewLiteral("foo"), nil))
	require.Nil(eval(t, NewLiteral(nil), nil))

	require.Equal("'foo'", NewLiteral("foo").String())
	require.Equal("NULL", NewLiteral(nil).String())
	require.Equal("42", NewLiteral(int64(42)).String())
}

func TestIdentifier(t *testing.T) {
	require := require.New(t)

	row := etl.NewRow("income", int64(4000), "contact.last_name", "Smith")

	require.Equal(int64(4000), eval(t, NewIdentifier("income"), row))
	require.Equal("Smith", eval(t, NewIdentifier("contact.last_name"), row))

	// Names absent from the context are null, never errors.
	require.Nil(eval(t, NewIdentifier("bonus"), row))
}

func TestExpressionStrings(t *testing.T) {
	require := require.New(t)

	e := NewOr(
		NewGreaterThan(NewIdentifier("income"), NewLiteral(int64(0))),
		NewIsNull(NewIdentifier("income")),
	)
	require.Equal("((income > 0) OR (income IS NULL))", e.String())

	a := NewMult(NewPlus(NewIdentifier("a"), NewLiteral(int64(1))), NewLiteral(int64(2)))
	require.Equal("((a + 1) * 2)", a.String())
}
