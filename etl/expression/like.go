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
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/appsink/appsink/etl"
)

// Like performs SQL pattern matching: % matches any run of characters, _
// exactly one. Matching is case-insensitive, as on a default SQL Server
// collation.
type Like struct {
	BinaryExpression

	once   sync.Once
	re     *regexp.Regexp
	reErr  error
	static bool
}

// NewLike creates a new LIKE expression. Literal patterns are compiled once
// and reused across evaluations.
func NewLike(left, right etl.Expression) *Like {
	_, static := right.(*Literal)
	return &Like{
		BinaryExpression: BinaryExpression{Left: left, Right: right},
		static:           static,
	}
}

// Eval implements the Expression interface.
func (l *Like) Eval(ctx *etl.Context, row etl.Row) (interface{}, error) {
	left, err := l.Left.Eval(ctx, row)
	if err != nil || left == nil {
		return nil, err
	}
	s, err := cast.ToStringE(left)
	if err != nil {
		return nil, nil
	}

	re, err := l.matcher(ctx, row)
	if err != nil {
		return nil, err
	}
	if re == nil {
		return nil, nil
	}
	return re.MatchString(s), nil
}

func (l *Like) matcher(ctx *etl.Context, row etl.Row) (*regexp.Regexp, error) {
	if l.static {
		l.once.Do(func() {
			l.re, l.reErr = l.compileRight(ctx, row)
		})
		return l.re, l.reErr
	}
	return l.compileRight(ctx, row)
}

func (l *Like) compileRight(ctx *etl.Context, row etl.Row) (*regexp.Regexp, error) {
	v, err := l.Right.Eval(ctx, row)
	if err != nil || v == nil {
		return nil, err
	}
	pattern, err := cast.ToStringE(v)
	if err != nil {
		return nil, nil
	}
	return regexp.Compile(patternToGoRegex(pattern))
}

// WithChildren implements the Expression interface.
func (l *Like) WithChildren(children ...etl.Expression) (etl.Expression, error) {
	if len(children) != 2 {
		return nil, etl.ErrInvalidChildrenNumber.New(l, len(children), 2)
	}
	return NewLike(children[0], children[1]), nil
}

func (l *Like) String() string {
	return fmt.Sprintf("(%s LIKE %s)", l.Left, l.Right)
}

func patternToGoRegex(pattern string) string {
	var buf bytes.Buffer
	buf.WriteString("(?is)^")
	var escaped bool
	for _, r := range strings.Replace(regexp.QuoteMeta(pattern), `\\`, `\`, -1) {
		switch r {
		case '_':
			if escaped {
				buf.WriteRune(r)
			} else {
				buf.WriteRune('.')
			}
		case '%':
			if escaped {
				buf.WriteRune(r)
			} else {
				buf.WriteString(".*")
			}
		case '\\':
			if escaped {
				buf.WriteString(`\\`)
			} else {
				escaped = true
				continue
			}
		default:
			if escaped {
				buf.WriteString(`\`)
			}
			buf.WriteRune(r)
		}

		if escaped {
			escaped = false
		}
	}

	buf.WriteRune('$')
	return buf.String()
}
