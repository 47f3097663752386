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

package pipeline

import (
	"context"
	"database/sql"
	"strings"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/migrate"
)

const (
	stagingTable = "app_xml"
	logTable     = "processing_log"

	// Blobs at or under this many bytes are headers or placeholders, not
	// applications.
	minXMLBytes = 100
)

// WorkItem is one staged application.
type WorkItem struct {
	AppID int64
	XML   []byte
}

// WorkQuery parameterizes one staging fetch.
type WorkQuery struct {
	// Cursor is the highest app id already handed out; the fetch starts
	// strictly after it. OFFSET paging degrades as the log grows, cursor
	// paging does not.
	Cursor int64
	// Limit caps the batch. Zero means no cap.
	Limit int
	// PartitionMod and PartitionRem select this instance's share when
	// cooperating instances split the staging table by app id modulo.
	// A mod of 0 or 1 disables partitioning.
	PartitionMod int64
	PartitionRem int64
	// StartID and EndID bound the id range when nonzero.
	StartID int64
	EndID   int64
	// ExcludeFailed skips applications that already have a failed log
	// record instead of retrying them.
	ExcludeFailed bool
}

// Source reads pending applications from the staging table, skipping
// whatever the processing log marks as already handled.
type Source struct {
	db      *sql.DB
	dialect migrate.Dialect
	schema  string
}

// NewSource returns a Source over the staging database.
func NewSource(db *sql.DB, dialect migrate.Dialect, schema string) *Source {
	return &Source{db: db, dialect: dialect, schema: schema}
}

// GetWork fetches the next batch in ascending app id order. Reads are
// non-locking; loader processes appending to the staging table never
// block a fetch.
func (s *Source) GetWork(ctx context.Context, q WorkQuery) ([]WorkItem, error) {
	query, args := s.workQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, etl.ErrConnection.New(err)
	}
	defer rows.Close()

	var items []WorkItem
	for rows.Next() {
		var it WorkItem
		if err := rows.Scan(&it.AppID, &it.XML); err != nil {
			return nil, etl.ErrConnection.New(err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, etl.ErrConnection.New(err)
	}
	return items, nil
}

func (s *Source) workQuery(q WorkQuery) (string, []interface{}) {
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return s.dialect.Placeholder(len(args))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Limit > 0 {
		sb.WriteString(s.dialect.Top(q.Limit))
	}
	sb.WriteString("a.app_id, a.xml FROM ")
	sb.WriteString(s.dialect.QualifyTable(s.schema, stagingTable))
	sb.WriteString(" AS a")
	sb.WriteString(s.dialect.NoLock())

	sb.WriteString(" WHERE a.app_id > ")
	sb.WriteString(arg(q.Cursor))
	sb.WriteString(" AND a.xml IS NOT NULL AND ")
	sb.WriteString(s.dialect.ByteLength("a.xml"))
	sb.WriteString(" > ")
	sb.WriteString(arg(minXMLBytes))

	if q.PartitionMod > 1 {
		sb.WriteString(" AND a.app_id % ")
		sb.WriteString(arg(q.PartitionMod))
		sb.WriteString(" = ")
		sb.WriteString(arg(q.PartitionRem))
	}
	if q.StartID > 0 {
		sb.WriteString(" AND a.app_id >= ")
		sb.WriteString(arg(q.StartID))
	}
	if q.EndID > 0 {
		sb.WriteString(" AND a.app_id <= ")
		sb.WriteString(arg(q.EndID))
	}

	sb.WriteString(" AND NOT EXISTS (SELECT 1 FROM ")
	sb.WriteString(s.dialect.QualifyTable(s.schema, logTable))
	sb.WriteString(" AS l")
	sb.WriteString(s.dialect.NoLock())
	sb.WriteString(" WHERE l.app_id = a.app_id AND ")
	if q.ExcludeFailed {
		sb.WriteString("l.status IN ('success', 'failed')")
	} else {
		sb.WriteString("l.status = 'success'")
	}
	sb.WriteString(")")

	sb.WriteString(" ORDER BY a.app_id")
	if q.Limit > 0 {
		sb.WriteString(s.dialect.Limit(q.Limit))
	}
	return sb.String(), args
}
