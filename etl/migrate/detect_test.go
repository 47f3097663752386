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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/etltest"
)

func TestDetectorSingleKey(t *testing.T) {
	require := require.New(t)
	db := etltest.Open(t)
	etltest.Exec(t, db,
		`CREATE TABLE contact_base (con_id INTEGER PRIMARY KEY, first_name TEXT)`,
		`INSERT INTO contact_base (con_id, first_name) VALUES (901, 'Ada')`,
	)

	rows := []etl.Row{
		{"con_id": int64(901), "first_name": "Ada"},
		{"con_id": int64(902), "first_name": "Charles"},
	}
	tbl := &etl.TableMapping{Name: "contact_base", DuplicateKey: []string{"con_id"}}

	kept, skipped, err := NewDetector(SQLite, "dbo").Filter(etl.NewEmptyContext(), db, tbl, rows)
	require.NoError(err)
	require.Equal(1, skipped)
	require.Len(kept, 1)
	require.Equal(int64(902), kept[0]["con_id"])
}

func TestDetectorCompositeKey(t *testing.T) {
	require := require.New(t)
	db := etltest.Open(t)
	etltest.Exec(t, db,
		`CREATE TABLE contact_address (
			con_id INTEGER,
			address_type_enum INTEGER,
			line1 TEXT,
			PRIMARY KEY (con_id, address_type_enum)
		)`,
		`INSERT INTO contact_address VALUES (901, 1, '14 Byron Rd')`,
	)

	rows := []etl.Row{
		{"con_id": int64(901), "address_type_enum": int64(1), "line1": "14 Byron Rd"},
		{"con_id": int64(901), "address_type_enum": int64(2), "line1": "9 Old Town"},
		{"con_id": int64(902), "address_type_enum": int64(1), "line1": "1 Mill Ln"},
	}
	tbl := &etl.TableMapping{
		Name:         "contact_address",
		DuplicateKey: []string{"con_id", "address_type_enum"},
	}

	kept, skipped, err := NewDetector(SQLite, "dbo").Filter(etl.NewEmptyContext(), db, tbl, rows)
	require.NoError(err)
	require.Equal(1, skipped)
	require.Len(kept, 2)
	require.Equal(int64(2), kept[0]["address_type_enum"])
	require.Equal(int64(902), kept[1]["con_id"])
}

func TestDetectorNoKeyPassesThrough(t *testing.T) {
	require := require.New(t)

	rows := []etl.Row{{"app_id": int64(1)}, {"app_id": int64(2)}}
	tbl := &etl.TableMapping{Name: "app_score"}

	// No probe runs, so no database is needed at all.
	kept, skipped, err := NewDetector(SQLite, "dbo").Filter(etl.NewEmptyContext(), nil, tbl, rows)
	require.NoError(err)
	require.Zero(skipped)
	require.Equal(rows, kept)
}

func TestDetectorKeepsRowsMissingKeyColumns(t *testing.T) {
	require := require.New(t)
	db := etltest.Open(t)
	etltest.Exec(t, db,
		`CREATE TABLE contact_base (con_id INTEGER PRIMARY KEY, first_name TEXT)`,
		`INSERT INTO contact_base (con_id, first_name) VALUES (901, 'Ada')`,
	)

	rows := []etl.Row{
		{"first_name": "NoKey"},
		{"con_id": int64(901), "first_name": "Ada"},
	}
	tbl := &etl.TableMapping{Name: "contact_base", DuplicateKey: []string{"con_id"}}

	kept, skipped, err := NewDetector(SQLite, "dbo").Filter(etl.NewEmptyContext(), db, tbl, rows)
	require.NoError(err)
	require.Equal(1, skipped)
	require.Len(kept, 1)
	require.Equal("NoKey", kept[0]["first_name"])
}

func TestDetectorKeepsInBatchDuplicates(t *testing.T) {
	require := require.New(t)
	db := etltest.Open(t)
	etltest.Exec(t, db,
		`CREATE TABLE contact_base (con_id INTEGER PRIMARY KEY, first_name TEXT)`,
	)

	// The detector filters against the destination only; rows that repeat
	// a key inside one batch are the constraint's problem.
	rows := []etl.Row{
		{"con_id": int64(903), "first_name": "Grace"},
		{"con_id": int64(903), "first_name": "Grace"},
	}
	tbl := &etl.TableMapping{Name: "contact_base", DuplicateKey: []string{"con_id"}}

	kept, skipped, err := NewDetector(SQLite, "dbo").Filter(etl.NewEmptyContext(), db, tbl, rows)
	require.NoError(err)
	require.Zero(skipped)
	require.Len(kept, 2)
}

// tinyParamDialect forces one probe tuple per batch so the chunked scan
// path is exercised with small fixtures.
type tinyParamDialect struct{ Dialect }

func (tinyParamDialect) MaxParams() int { return 2 }

func TestDetectorBatchesProbes(t *testing.T) {
	require := require.New(t)
	db := etltest.Open(t)
	etltest.Exec(t, db,
		`CREATE TABLE contact_address (
			con_id INTEGER,
			address_type_enum INTEGER,
			PRIMARY KEY (con_id, address_type_enum)
		)`,
		`INSERT INTO contact_address VALUES (901, 1)`,
		`INSERT INTO contact_address VALUES (902, 1)`,
	)

	rows := []etl.Row{
		{"con_id": int64(901), "address_type_enum": int64(1)},
		{"con_id": int64(901), "address_type_enum": int64(2)},
		{"con_id": int64(902), "address_type_enum": int64(1)},
		{"con_id": int64(903), "address_type_enum": int64(1)},
	}
	tbl := &etl.TableMapping{
		Name:         "contact_address",
		DuplicateKey: []string{"con_id", "address_type_enum"},
	}

	d := NewDetector(tinyParamDialect{SQLite}, "dbo")
	kept, skipped, err := d.Filter(etl.NewEmptyContext(), db, tbl, rows)
	require.NoError(err)
	require.Equal(2, skipped)
	require.Len(kept, 2)
}

func TestKeyPartCanonicalForms(t *testing.T) {
	require := require.New(t)

	// The same SQL value scans back under different Go types depending on
	// the driver; all spellings must collapse to one key part.
	require.Equal(keyPart(int64(901)), keyPart(float64(901)))
	require.Equal(keyPart(int64(901)), keyPart([]byte("901")))
	require.Equal(keyPart(int64(1)), keyPart(true))
	require.Equal(keyPart(int64(0)), keyPart(false))
	require.Equal(
		keyPart(decimal.RequireFromString("12500.5")),
		keyPart([]byte("12500.50")),
	)

	ts := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	require.Equal("2024-03-10 00:00:00", keyPart(ts))

	require.Equal("CURR", keyPart("CURR"))
	require.NotEqual(keyPart("CURR"), keyPart("PREV"))
	require.Equal("\x00", keyPart(nil))

	// Numeric strings and numbers probe the same; plain text stays apart
	// from everything numeric.
	require.Equal(keyPart("7"), keyPart(int64(7)))
	require.NotEqual(keyPart("7up"), keyPart(int64(7)))
}
