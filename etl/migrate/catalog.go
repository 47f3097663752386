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

	"github.com/appsink/appsink/etl"
)

// catalogQuery reads one table's column metadata from the SQL Server
// system views. max_length is in bytes; double-byte types are halved on
// the way out.
const catalogQuery = `
SELECT c.name,
       ty.name,
       c.is_nullable,
       c.max_length,
       CASE WHEN dc.parent_column_id IS NULL THEN 0 ELSE 1 END,
       c.is_identity
FROM sys.columns c
JOIN sys.objects o ON o.object_id = c.object_id
JOIN sys.schemas s ON s.schema_id = o.schema_id
JOIN sys.types ty ON ty.user_type_id = c.user_type_id
LEFT JOIN sys.default_constraints dc
       ON dc.parent_object_id = c.object_id
      AND dc.parent_column_id = c.column_id
WHERE s.name = @p1 AND o.name = @p2 AND c.is_computed = 0
ORDER BY c.column_id`

// CatalogReader fills in column metadata for contract tables that carry
// no columns block of their own. It reads the SQL Server catalog; other
// destinations must declare their columns in the contract.
type CatalogReader struct {
	q Querier
}

// NewCatalogReader returns a CatalogReader over the given connection.
func NewCatalogReader(q Querier) *CatalogReader {
	return &CatalogReader{q: q}
}

// TableColumns returns the destination's live column set for one table,
// keyed by column name. An unknown table yields an empty map; contract
// validation rejects the table downstream if mappings reference it.
func (r *CatalogReader) TableColumns(ctx context.Context, schema, table string) (map[string]*etl.Column, error) {
	rows, err := r.q.QueryContext(ctx, catalogQuery, schema, table)
	if err != nil {
		return nil, etl.ErrConnection.New(err)
	}
	defer rows.Close()

	out := make(map[string]*etl.Column)
	for rows.Next() {
		var (
			name, typeName      string
			nullable            bool
			maxLen              int
			hasDefault, isIdent bool
		)
		if err := rows.Scan(&name, &typeName, &nullable, &maxLen, &hasDefault, &isIdent); err != nil {
			return nil, etl.ErrConnection.New(err)
		}
		out[name] = catalogColumn(name, typeName, nullable, maxLen, hasDefault, isIdent)
	}
	if err := rows.Err(); err != nil {
		return nil, etl.ErrConnection.New(err)
	}
	return out, nil
}

// catalogColumn translates one sys.columns row into the contract model.
// A column the server fills on its own, whether nullable, defaulted or
// identity, is not required of the mapper; leaving it out of the insert
// lets the server supply the value. The default expression itself stays
// server side, so HasDefault is never set from the catalog.
func catalogColumn(name, typeName string, nullable bool, maxLen int, hasDefault, isIdentity bool) *etl.Column {
	switch typeName {
	case "nchar", "nvarchar":
		if maxLen > 0 {
			maxLen /= 2
		}
	}
	if maxLen < 0 {
		// max_length -1 marks (MAX) types; unbounded for our purposes.
		maxLen = 0
	}
	return &etl.Column{
		Name:      name,
		Nullable:  nullable,
		Required:  !nullable && !hasDefault && !isIdentity,
		MaxLength: maxLen,
	}
}
