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

import "sort"

// Row is the set of typed column values produced for one destination row.
// A column whose mapping yielded no value is absent from the map, not set to
// nil, so the database default applies on insert.
type Row map[string]interface{}

// NewRow creates a row from pairs of column name and value.
func NewRow(pairs ...interface{}) Row {
	row := make(Row, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		row[pairs[i].(string)] = pairs[i+1]
	}
	return row
}

// Has reports whether the column was populated.
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Copy creates a new row with the same values as the current one.
func (r Row) Copy() Row {
	nr := make(Row, len(r))
	for k, v := range r {
		nr[k] = v
	}
	return nr
}

// Columns returns the populated column names in lexical order. Bulk insert
// relies on this being deterministic for a given row.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// RowSet is the output of mapping one application: every destination table
// with the rows to insert into it, in creation order. Insertion order across
// tables is the contract's concern, not the row set's.
type RowSet map[string][]Row

// Append adds rows to a table, keeping creation order.
func (rs RowSet) Append(table string, rows ...Row) {
	rs[table] = append(rs[table], rows...)
}

// Total returns the number of rows across all tables.
func (rs RowSet) Total() int {
	var n int
	for _, rows := range rs {
		n += len(rows)
	}
	return n
}

// ColumnUnion returns the sorted union of populated columns across the
// table's rows. The bulk insert strategy binds this column list and supplies
// nil for rows that omitted a column.
func (rs RowSet) ColumnUnion(table string) []string {
	seen := map[string]struct{}{}
	for _, row := range rs[table] {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
