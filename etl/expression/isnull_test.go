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

func TestIsNull(t *testing.T) {
	require := require.New(t)

	e := NewIsNull(NewIdentifier("ssn"))
	require.Equal(true, eval(t, e, etl.NewRow()))
	require.Equal(false, eval(t, e, etl.NewRow("ssn", "")))
	require.Equal(false, eval(t, e, etl.NewRow("ssn", "123-45-6789")))
}

func TestIsEmpty(t *testing.T) {
	testCases := []struct {
		name     string
		value    interface{}
		expected interface{}
	}{
		{"null", nil, true},
		{"empty string", "", true},
		{"whitespace only", "   \t", true},
		{"text", "Smith", false},
		{"zero is not empty", int64(0), false},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result := eval(t, NewIsEmpty(NewLiteral(tt.value)), nil)
			require.Equal(tt.expected, result)
		})
	}
}
