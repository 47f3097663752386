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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/migrate"
)

// RunInfo identifies one processing session in the log.
type RunInfo struct {
	Session string
	StartID int64
	EndID   int64
}

// LogStore appends terminal outcomes to the processing log. The log is
// append-only; a record is written exactly once per application per
// session and never updated.
type LogStore struct {
	db      *sql.DB
	dialect migrate.Dialect
	schema  string
	run     RunInfo
}

// NewLogStore returns a LogStore stamping records with the given run.
func NewLogStore(db *sql.DB, dialect migrate.Dialect, schema string, run RunInfo) *LogStore {
	return &LogStore{db: db, dialect: dialect, schema: schema, run: run}
}

// Record writes one application's outcome. Competing instances can race
// on the same application; the primary key decides the winner and the
// loser's write is dropped without error.
func (s *LogStore) Record(ctx context.Context, r Result) error {
	ph := make([]string, 7)
	for i := range ph {
		ph[i] = s.dialect.Placeholder(i + 1)
	}
	query := "INSERT INTO " + s.dialect.QualifyTable(s.schema, logTable) +
		" (app_id, status, failure_reason, session_id, app_id_start, app_id_end, processed_at) VALUES (" +
		strings.Join(ph, ", ") + ")"

	var reason interface{}
	if r.Reason != "" {
		reason = r.Reason
	}
	var start, end interface{}
	if s.run.StartID > 0 {
		start = s.run.StartID
	}
	if s.run.EndID > 0 {
		end = s.run.EndID
	}

	_, err := s.db.ExecContext(ctx, query,
		r.AppID, string(r.Status), reason, s.run.Session, start, end, time.Now().UTC())
	if err != nil {
		if cerr, ok := s.dialect.ConstraintError(logTable, err); ok && etl.ErrPrimaryKeyViolation.Is(cerr) {
			logrus.WithFields(logrus.Fields{
				"app_id":  r.AppID,
				"session": s.run.Session,
			}).Warn("processing log record already written by a competing instance")
			return nil
		}
		return etl.ErrConnection.New(err)
	}
	return nil
}
