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

package etl

import "fmt"

// Expression is a node of a parsed calculated-field expression. Expressions
// are immutable after parsing and safe for concurrent evaluation.
type Expression interface {
	fmt.Stringer
	// Eval evaluates the expression against one application's flattened
	// context. Unknown identifiers evaluate to nil, never to an error.
	Eval(ctx *Context, row Row) (interface{}, error)
	// Children returns the node's children, leftmost first.
	Children() []Expression
	// WithChildren returns a copy of the node with the given children.
	WithChildren(children ...Expression) (Expression, error)
}

// Inspect traverses the expression tree in prefix order, calling f on every
// node. Traversal stops descending when f returns false.
func Inspect(e Expression, f func(Expression) bool) {
	if e == nil || !f(e) {
		return
	}
	for _, c := range e.Children() {
		Inspect(c, f)
	}
}
