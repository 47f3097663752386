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
	"time"

	"github.com/stretchr/testify/require"
)

func TestComparisons(t *testing.T) {
	date := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}

	testCases := []struct {
		name        string
		op          string
		left, right interface{}
		expected    interface{}
	}{
		{"int equals", EqStr, int64(42), int64(42), true},
		{"int not equal op", NeqStr, int64(42), int64(43), true},
		{"int less than", LtStr, int64(1), int64(2), true},
		{"int greater than", GtStr, int64(2), int64(1), true},
		{"int lte equal", LteStr, int64(2), int64(2), true},
		{"int gte less", GteStr, int64(1), int64(2), false},

		{"float against int", EqStr, 42.0, int64(42), true},
		{"numeric string against int", EqStr, "42", int64(42), true},
		{"numeric string ordering", GtStr, "10", int64(9), true},

		{"strings case insensitive", EqStr, "Smith", "SMITH", true},
		{"string ordering", LtStr, "adams", "Baker", true},
		{"string ordering folds case", GtStr, "ZEBRA", "apple", true},

		{"dates as instants", LtStr, date("2024-01-01"), date("2024-06-01"), true},
		{"same date", EqStr, date("2024-01-01"), date("2024-01-01"), true},

		{"null left", EqStr, nil, int64(1), nil},
		{"null right", NeqStr, int64(1), nil, nil},

		{"incomparable equals", EqStr, []int{1}, int64(1), false},
		{"incomparable not equal", NeqStr, []int{1}, int64(1), true},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result := eval(t, NewComparison(NewLiteral(tt.left), NewLiteral(tt.right), tt.op), nil)
			require.Equal(tt.expected, result)
		})
	}
}

func TestComparisonConstructors(t *testing.T) {
	require := require.New(t)

	require.Equal(EqStr, NewEquals(nil, nil).Op)
	require.Equal(NeqStr, NewNotEquals(nil, nil).Op)
	require.Equal(LtStr, NewLessThan(nil, nil).Op)
	require.Equal(GtStr, NewGreaterThan(nil, nil).Op)
	require.Equal(LteStr, NewLessThanOrEqual(nil, nil).Op)
	require.Equal(GteStr, NewGreaterThanOrEqual(nil, nil).Op)
}
