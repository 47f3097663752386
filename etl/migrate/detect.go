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

package migrate

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/appsink/appsink/etl"
)

// Querier is the read-only slice of database/sql that the detector and
// the catalog reader depend on. *sql.DB, *sql.Conn and *sql.Tx all
// satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Detector drops rows whose duplicate key already exists in the
// destination before they reach the inserter. It only reads; tables with
// no duplicate_key_columns pass through untouched.
type Detector struct {
	dialect Dialect
	schema  string
}

// NewDetector returns a Detector writing probe queries in the given
// dialect against the given schema.
func NewDetector(dialect Dialect, schema string) *Detector {
	return &Detector{dialect: dialect, schema: schema}
}

type probe struct {
	key  string
	args []interface{}
}

// Filter returns the rows whose key is not yet present in table t, along
// with the number it removed. Rows that do not carry every key column are
// kept; the destination's own constraints are the final authority on
// those. Probe reads are non-locking so a concurrent writer never blocks
// the scan.
func (d *Detector) Filter(ctx *etl.Context, q Querier, t *etl.TableMapping, rows []etl.Row) ([]etl.Row, int, error) {
	if len(t.DuplicateKey) == 0 || len(rows) == 0 {
		return rows, 0, nil
	}

	seen := make(map[string]struct{}, len(rows))
	probes := make([]probe, 0, len(rows))
	for _, row := range rows {
		args, ok := keyArgs(row, t.DuplicateKey)
		if !ok {
			continue
		}
		k := joinKey(args)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		probes = append(probes, probe{key: k, args: args})
	}

	existing, err := d.lookup(ctx, q, t, probes)
	if err != nil {
		return nil, 0, err
	}
	if len(existing) == 0 {
		return rows, 0, nil
	}

	kept := make([]etl.Row, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if args, ok := keyArgs(row, t.DuplicateKey); ok {
			if _, dup := existing[joinKey(args)]; dup {
				skipped++
				continue
			}
		}
		kept = append(kept, row)
	}
	return kept, skipped, nil
}

// lookup probes the destination for the given keys in batches sized to
// the dialect's parameter cap and returns the set that already exists.
func (d *Detector) lookup(ctx *etl.Context, q Querier, t *etl.TableMapping, probes []probe) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(probes) == 0 {
		return existing, nil
	}

	perBatch := max(d.dialect.MaxParams()/len(t.DuplicateKey), 1)
	for start := 0; start < len(probes); start += perBatch {
		batch := probes[start:min(start+perBatch, len(probes))]
		query, args := d.probeQuery(t, batch)
		if err := d.scanKeys(ctx, q, query, args, len(t.DuplicateKey), existing); err != nil {
			return nil, etl.ErrConnection.New(err)
		}
	}
	return existing, nil
}

func (d *Detector) scanKeys(ctx *etl.Context, q Querier, query string, args []interface{}, width int, existing map[string]struct{}) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	vals := make([]interface{}, width)
	ptrs := make([]interface{}, width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		existing[joinKey(vals)] = struct{}{}
	}
	return rows.Err()
}

// probeQuery builds the membership scan for one batch: a single-column
// key probes with IN, a composite key with one OR'd equality group per
// tuple.
func (d *Detector) probeQuery(t *etl.TableMapping, batch []probe) (string, []interface{}) {
	cols := t.DuplicateKey

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.dialect.QuoteIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(d.dialect.QualifyTable(d.schema, t.Name))
	sb.WriteString(d.dialect.NoLock())
	sb.WriteString(" WHERE ")

	args := make([]interface{}, 0, len(batch)*len(cols))
	if len(cols) == 1 {
		sb.WriteString(d.dialect.QuoteIdent(cols[0]))
		sb.WriteString(" IN (")
		for i, p := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			args = append(args, p.args[0])
			sb.WriteString(d.dialect.Placeholder(len(args)))
		}
		sb.WriteString(")")
		return sb.String(), args
	}

	for i, p := range batch {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(d.dialect.QuoteIdent(c))
			sb.WriteString(" = ")
			args = append(args, p.args[j])
			sb.WriteString(d.dialect.Placeholder(len(args)))
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}

// keyArgs extracts the duplicate key values from a row in column order.
// It returns false when any key column is absent from the row.
func keyArgs(row etl.Row, cols []string) ([]interface{}, bool) {
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		v, ok := row[c]
		if !ok {
			return nil, false
		}
		args[i] = v
	}
	return args, true
}

// joinKey folds a key tuple into a comparable string. Values coming out
// of the row set and values scanned back from the database carry
// different Go types for the same SQL value, so every part is reduced to
// a canonical form first.
func joinKey(vals []interface{}) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = keyPart(v)
	}
	return strings.Join(parts, "\x1f")
}

func keyPart(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "\x00"
	case bool:
		if v {
			return "#1"
		}
		return "#0"
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05.999999999")
	case decimal.Decimal:
		return "#" + v.String()
	case []byte:
		return canonical(string(v))
	default:
		return canonical(cast.ToString(v))
	}
}

// canonical collapses the numeric spellings of one value. int64(7),
// float64(7) and the scanned string "7.0" must all probe as the same
// key part.
func canonical(s string) string {
	if d, err := decimal.NewFromString(s); err == nil {
		return "#" + d.String()
	}
	return s
}
