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

// Package similartext suggests close matches for misspelled contract names
// (tables, enums, mapping types) in error messages.
package similartext

import (
	"fmt"
	"reflect"
	"strings"
)

// MaxDistanceIgnored is the edit distance at or above which a candidate is
// not suggested.
const MaxDistanceIgnored = 3

// distance returns the Levenshtein edit distance between source and target,
// using memory proportional to len(target).
func distance(source, target []rune) int {
	prev := make([]int, len(target)+1)
	cur := make([]int, len(target)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(source); i++ {
		cur[0] = i
		for j := 1; j <= len(target); j++ {
			substitution := prev[j-1]
			if source[i-1] != target[j-1] {
				substitution++
			}
			deletion := prev[j] + 1
			insertion := cur[j-1] + 1

			m := substitution
			if deletion < m {
				m = deletion
			}
			if insertion < m {
				m = insertion
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(target)]
}

// Find returns a ", maybe you mean X?" suffix listing the names closest to
// src, or an empty string when nothing is close enough.
func Find(names []string, src string) string {
	if len(src) == 0 {
		return ""
	}

	best := -1
	byDistance := make(map[int][]string)
	for _, name := range names {
		d := distance([]rune(name), []rune(src))
		if d >= MaxDistanceIgnored {
			continue
		}
		if best == -1 || d < best {
			best = d
		}
		byDistance[d] = append(byDistance[d], name)
	}

	if best == -1 {
		return ""
	}
	return fmt.Sprintf(", maybe you mean %s?", strings.Join(byDistance[best], " or "))
}

// FindFromMap is Find over the keys of a string-keyed map.
func FindFromMap(names interface{}, src string) string {
	v := reflect.ValueOf(names)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		panic("similartext: FindFromMap requires a string-keyed map")
	}

	list := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		list = append(list, k.String())
	}
	return Find(list, src)
}
