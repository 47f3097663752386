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

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/appsink/appsink/etl"
)

// Beginner opens transactions. *sql.DB and *sql.Conn both satisfy it;
// workers pass their pinned connection so one application never spans
// two sessions.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Migrator writes one application's row set to the destination inside a
// single transaction, walking tables in the contract's insertion order
// so parents land before the rows that reference them.
type Migrator struct {
	contract *etl.Contract
	detector *Detector
	inserter *Inserter
}

// NewMigrator returns a Migrator for one contract and dialect.
func NewMigrator(c *etl.Contract, dialect Dialect) *Migrator {
	return &Migrator{
		contract: c,
		detector: NewDetector(dialect, c.TargetSchema),
		inserter: NewInserter(dialect, c.TargetSchema),
	}
}

// Migrate inserts every table of the row set and returns per-table
// inserted counts. The whole application commits or rolls back as one
// unit. A rollback failure on top of an insert failure leaves the
// destination in doubt and is reported as such.
func (m *Migrator) Migrate(ctx *etl.Context, db Beginner, rs etl.RowSet) (map[string]int, error) {
	span, ctx := ctx.Span("migrate", opentracing.Tag{Key: "app_id", Value: ctx.AppID()})
	defer span.Finish()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, etl.ErrConnection.New(err)
	}

	counts, err := m.migrateTables(ctx, tx, rs)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return nil, etl.ErrTxAtomicity.New(err, rbErr)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, etl.ErrConnection.New(err)
	}
	return counts, nil
}

func (m *Migrator) migrateTables(ctx *etl.Context, tx *sql.Tx, rs etl.RowSet) (map[string]int, error) {
	counts := make(map[string]int, len(rs))
	for _, name := range m.contract.TableInsertionOrder {
		rows := rs[name]
		if len(rows) == 0 {
			continue
		}
		t, err := m.contract.Table(name)
		if err != nil {
			return nil, err
		}

		kept, skipped, err := m.detector.Filter(ctx, tx, t, rows)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			logrus.WithFields(logrus.Fields{
				"app_id":  ctx.AppID(),
				"table":   name,
				"skipped": skipped,
			}).Debug("dropped rows already present in the destination")
		}

		n, err := m.inserter.Insert(ctx, tx, t, kept)
		if err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}
