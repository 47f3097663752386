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

package mapper

import (
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/appsink/appsink/etl"
)

// chainValue is the outcome of a mapping chain: the value, whether there is
// one, and whether it was defaulted in rather than read from the source.
type chainValue struct {
	v         interface{}
	has       bool
	defaulted bool
}

var noValue = chainValue{}

// First signed numeric token, decimal point included.
var numericToken = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// runChain interprets a mapping's chain over the raw source value. Each step
// consumes the previous step's output, and a step yielding no value ends the
// chain early. The one exception: an enum directly after a calculated field
// that produced nothing is handed the pre-chain original instead.
func (e *Engine) runChain(ctx *etl.Context, m *etl.FieldMapping, raw string, has bool, env *rowEnv) (chainValue, error) {
	out := chainValue{has: has}
	if has {
		out.v = raw
	}

	for i, step := range m.Chain {
		switch step.Kind {
		case etl.StepIdentityInsert:
			// Consumed at contract load; nothing to do per value.

		case etl.StepCalculatedField:
			if m.Expr == nil {
				return noValue, nil
			}
			r, err := m.Expr.Eval(ctx, env.exprRow(m, raw, has))
			if err != nil {
				return noValue, err
			}
			if r == nil {
				if has && i+1 < len(m.Chain) && m.Chain[i+1].Kind == etl.StepEnum {
					// Conditional enum fallback: the expression produced
					// nothing, so the enum gets the original source value.
					out.v, out.has = raw, true
					continue
				}
				return noValue, nil
			}
			out.v, out.has = r, true

		case etl.StepLastValidPrimaryContact:
			out.set(Attr(env.contacts.Primary, m.XMLAttribute))

		case etl.StepLastValidSecondaryContact:
			out.set(Attr(env.contacts.Secondary, m.XMLAttribute))

		case etl.StepCurrAddressOnly:
			out.set(Attr(env.currentAddress(), m.XMLAttribute))

		case etl.StepDefaultGetUTCDateIfNull:
			if !out.has || blank(out.v) {
				out.v, out.has, out.defaulted = time.Now().UTC(), true, true
			}

		case etl.StepEnum:
			if !out.has {
				return noValue, nil
			}
			enum, err := e.contract.Enum(m.EnumName)
			if err != nil {
				return noValue, err
			}
			mapped, ok := enum.Lookup(cast.ToString(out.v))
			if !ok {
				return noValue, nil
			}
			out.v = mapped

		case etl.StepCharToBit:
			if !out.has {
				return noValue, nil
			}
			b, err := etl.Bit.Convert(out.v)
			if err != nil || b == nil {
				return noValue, nil
			}
			out.v = b

		case etl.StepNumbersOnly:
			if !out.has {
				return noValue, nil
			}
			out.set(nonEmpty(digitsOnly(cast.ToString(out.v))))

		case etl.StepExtractNumeric:
			if !out.has {
				return noValue, nil
			}
			out.set(nonEmpty(numericToken.FindString(cast.ToString(out.v))))

		case etl.StepExtractDate:
			if !out.has {
				return noValue, nil
			}
			d, err := etl.Date.Convert(out.v)
			if err != nil || d == nil {
				return noValue, nil
			}
			out.v = d

		default:
			// Row-creating steps are interpreted by the auxiliary builder.
		}

		if !out.has {
			return noValue, nil
		}
	}

	// String outputs of a digits-only chain stay digits only, whatever later
	// steps did to them.
	if out.has && m.HasStep(etl.StepNumbersOnly) {
		if s, ok := out.v.(string); ok {
			if d := digitsOnly(s); d != "" {
				out.v = d
			} else {
				return noValue, nil
			}
		}
	}
	return out, nil
}

func (c *chainValue) set(v string, ok bool) {
	c.v, c.has = nil, false
	if ok {
		c.v, c.has = v, true
	}
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func blank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
