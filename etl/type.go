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

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Type converts raw extracted values into the Go representation handed to
// the database driver for a destination column.
type Type interface {
	// Name is the contract-facing name of the type.
	Name() string
	// Convert coerces v into the type's canonical representation. A nil
	// input converts to nil. Values that cannot be represented return
	// ErrInvalidType; the mapping engine treats that as "no value".
	Convert(v interface{}) (interface{}, error)
}

var (
	// String is the type for varchar, nvarchar, char and text columns.
	String Type = stringType{}
	// Int64 is the type for all integer column widths.
	Int64 Type = intType{}
	// Float64 is the type for approximate numeric columns.
	Float64 Type = floatType{}
	// Decimal is the type for exact numeric columns (decimal, numeric,
	// money).
	Decimal Type = decimalType{}
	// Date is the type for date columns.
	Date Type = dateType{}
	// Datetime is the type for datetime and timestamp columns.
	Datetime Type = datetimeType{}
	// Bit is the type for bit and boolean columns, represented as int64 0/1.
	Bit Type = bitType{}
)

var typesByName = map[string]Type{
	"varchar": String, "nvarchar": String, "char": String, "nchar": String,
	"text": String, "ntext": String, "string": String,
	"int": Int64, "integer": Int64, "bigint": Int64, "smallint": Int64,
	"tinyint": Int64,
	"float": Float64, "real": Float64,
	"decimal": Decimal, "numeric": Decimal, "money": Decimal,
	"smallmoney": Decimal,
	"date": Date,
	"datetime": Datetime, "datetime2": Datetime, "smalldatetime": Datetime,
	"timestamp": Datetime,
	"bit": Bit, "bool": Bit, "boolean": Bit,
}

// LookupType resolves a contract data_type name. The second return value is
// false when the name is unknown.
func LookupType(name string) (Type, bool) {
	t, ok := typesByName[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02 15:04:05"), nil
	}
	if d, ok := v.(decimal.Decimal); ok {
		return d.String(), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, ErrInvalidType.New(v, "string")
	}
	return s, nil
}

type intType struct{}

func (intType) Name() string { return "int" }

// Convert accepts any numeric and, for strings, extracts the digits when the
// raw input carries non-digit noise ("$1,250" becomes 1250). A string with
// no digits at all has no integer value.
func (intType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if d, ok := v.(decimal.Decimal); ok {
		return d.IntPart(), nil
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if i, err := cast.ToInt64E(s); err == nil {
			return i, nil
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return int64(f), nil
		}
		digits := extractDigits(s)
		if digits == "" {
			return nil, ErrInvalidType.New(v, "int")
		}
		return cast.ToInt64E(digits)
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return nil, ErrInvalidType.New(v, "int")
	}
	return i, nil
}

func extractDigits(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (r == '-' && i == 0) {
			b.WriteRune(r)
		}
	}
	if b.String() == "-" {
		return ""
	}
	return b.String()
}

type floatType struct{}

func (floatType) Name() string { return "float" }

func (floatType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if d, ok := v.(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, ErrInvalidType.New(v, "float")
	}
	return f, nil
}

type decimalType struct{}

func (decimalType) Name() string { return "decimal" }

func (decimalType) Convert(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return t, nil
	case string:
		s := strings.TrimSpace(strings.Replace(t, ",", "", -1))
		s = strings.TrimPrefix(s, "$")
		if s == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, ErrInvalidType.New(v, "decimal")
		}
		return d, nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return nil, ErrInvalidType.New(v, "decimal")
		}
		return decimal.New(i, 0), nil
	}
}

// dateFormats are tried in order when converting strings. SQL Server's
// unseparated form comes last so "20240115" still parses.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339,
	"20060102",
}

func parseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateFormats {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
	}
	return time.Time{}, ErrInvalidType.New(v, "date")
}

type dateType struct{}

func (dateType) Name() string { return "date" }

func (dateType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	if t.IsZero() {
		return nil, nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

type datetimeType struct{}

func (datetimeType) Name() string { return "datetime" }

func (datetimeType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC(), nil
}

type bitType struct{}

func (bitType) Name() string { return "bit" }

var truthyBits = map[string]struct{}{
	"y": {}, "yes": {}, "true": {}, "t": {}, "1": {},
}

var falsyBits = map[string]struct{}{
	"n": {}, "no": {}, "false": {}, "f": {}, "0": {},
}

func (bitType) Convert(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "" {
			return nil, nil
		}
		if _, ok := truthyBits[s]; ok {
			return int64(1), nil
		}
		if _, ok := falsyBits[s]; ok {
			return int64(0), nil
		}
		return nil, ErrInvalidType.New(v, "bit")
	default:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return nil, ErrInvalidType.New(v, "bit")
		}
		if i != 0 {
			return int64(1), nil
		}
		return int64(0), nil
	}
}

// Truthy reports whether a raw source value counts as set for indicator
// mappings: Y, YES, TRUE, T or 1, case-insensitively.
func Truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return false
	}
	_, ok := truthyBits[strings.ToLower(strings.TrimSpace(s))]
	return ok
}
