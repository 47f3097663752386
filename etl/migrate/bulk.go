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
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/appsink/appsink/etl"
)

// SQL Server rejects a VALUES list with more than 1000 row expressions.
const maxRowsPerInsert = 1000

// Execer is the writing slice of database/sql the inserter depends on.
// *sql.Tx, *sql.Conn and *sql.DB all satisfy it, but identity-insert
// tables must run on a single session, so callers pass a transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Inserter writes one table's rows per call, fast path first and a
// per-row sweep when the fast path cannot place the whole batch.
type Inserter struct {
	dialect Dialect
	schema  string
}

// NewInserter returns an Inserter targeting the given schema.
func NewInserter(dialect Dialect, schema string) *Inserter {
	return &Inserter{dialect: dialect, schema: schema}
}

// Insert writes rows into table t and returns how many landed. The fast
// path is the driver's bulk copy, or a chunked multi-row INSERT when the
// table needs identity insert or the dialect has no bulk support. When
// the fast path fails on something the per-row sweep can isolate, each
// row is retried individually: on duplicate-tolerant tables a per-row
// primary key collision is warned and skipped, anything else fails the
// batch. Identity insert is always switched back off, even on failure,
// and a reset failure never masks the insert error.
func (ins *Inserter) Insert(ctx *etl.Context, ex Execer, t *etl.TableMapping, rows []etl.Row) (inserted int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := columnUnion(rows)
	if len(cols) == 0 {
		return 0, nil
	}

	if t.IdentityInsert {
		stmt, ok := ins.dialect.IdentityInsert(ins.schema, t.Name, true)
		if ok {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return 0, etl.ErrBulkInsert.New(t.Name, err)
			}
			defer func() {
				off, _ := ins.dialect.IdentityInsert(ins.schema, t.Name, false)
				if _, offErr := ex.ExecContext(ctx, off); offErr != nil {
					logrus.WithField("table", t.Name).
						WithError(offErr).
						Warn("failed to reset identity insert")
					if err == nil {
						err = etl.ErrBulkInsert.New(t.Name, offErr)
						inserted = 0
					}
				}
			}()
		}
	}

	fastErr := ins.fastPath(ctx, ex, t, cols, rows)
	if fastErr == nil {
		return len(rows), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, etl.ErrBulkInsert.New(t.Name, fastErr)
	}

	cerr, isConstraint := ins.dialect.ConstraintError(t.Name, fastErr)
	if isConstraint && !(etl.ErrPrimaryKeyViolation.Is(cerr) && t.TolerateDuplicates) {
		return 0, cerr
	}
	return ins.perRow(ctx, ex, t, cols, rows)
}

func (ins *Inserter) fastPath(ctx *etl.Context, ex Execer, t *etl.TableMapping, cols []string, rows []etl.Row) error {
	if ins.dialect.SupportsBulkCopy() && !t.IdentityInsert {
		return ins.bulkCopy(ctx, ex, t, cols, rows)
	}
	return ins.multiRow(ctx, ex, t, cols, rows)
}

// bulkCopy streams the batch through the driver's bulk protocol: one
// prepared statement, one bound call per row, and a final bare call that
// flushes the batch to the server.
func (ins *Inserter) bulkCopy(ctx *etl.Context, ex Execer, t *etl.TableMapping, cols []string, rows []etl.Row) error {
	stmt, err := ex.PrepareContext(ctx, ins.dialect.BulkCopyStatement(ins.schema, t.Name, cols))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, rowArgs(row, cols)...); err != nil {
			return err
		}
	}
	_, err = stmt.ExecContext(ctx)
	return err
}

func (ins *Inserter) multiRow(ctx *etl.Context, ex Execer, t *etl.TableMapping, cols []string, rows []etl.Row) error {
	perChunk := min(max(ins.dialect.MaxParams()/len(cols), 1), maxRowsPerInsert)
	for start := 0; start < len(rows); start += perChunk {
		chunk := rows[start:min(start+perChunk, len(rows))]
		query, args := ins.insertStatement(t, cols, chunk)
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (ins *Inserter) insertStatement(t *etl.TableMapping, cols []string, rows []etl.Row) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(ins.dialect.QualifyTable(ins.schema, t.Name))
	sb.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ins.dialect.QuoteIdent(c))
	}
	sb.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, row[cols[j]])
			sb.WriteString(ins.dialect.Placeholder(len(args)))
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}

// perRow retries the batch one row at a time so a single bad row cannot
// take the rest of the batch down with it.
func (ins *Inserter) perRow(ctx *etl.Context, ex Execer, t *etl.TableMapping, cols []string, rows []etl.Row) (int, error) {
	query, _ := ins.insertStatement(t, cols, rows[:1])

	inserted := 0
	for _, row := range rows {
		if _, err := ex.ExecContext(ctx, query, rowArgs(row, cols)...); err != nil {
			cerr, isConstraint := ins.dialect.ConstraintError(t.Name, err)
			if isConstraint && etl.ErrPrimaryKeyViolation.Is(cerr) && t.TolerateDuplicates {
				ctx.Warn(t.Name, "", "duplicate row skipped: %s", err)
				continue
			}
			if isConstraint {
				return inserted, cerr
			}
			return inserted, etl.ErrBulkInsert.New(t.Name, err)
		}
		inserted++
	}
	return inserted, nil
}

// columnUnion collects every column any row populates, in a stable
// order. Columns a row omits are bound as NULL; on the bulk copy path
// the destination's own column defaults then apply.
func columnUnion(rows []etl.Row) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		for c := range row {
			set[c] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for c := range set {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func rowArgs(row etl.Row, cols []string) []interface{} {
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	return args
}
