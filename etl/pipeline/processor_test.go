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
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/etltest"
	"github.com/appsink/appsink/etl/migrate"
)

// processorFixture stages n applications with ids 1..n and wires a full
// processor around the given handler.
func processorFixture(t *testing.T, n int, h Handler, cfg Config) (*Processor, *sql.DB) {
	t.Helper()
	db := etltest.OpenFile(t)
	etltest.CreateStaging(t, db)
	etltest.CreateLog(t, db)
	for id := int64(1); id <= int64(n); id++ {
		etltest.InsertApp(t, db, id, stagedXML(id))
	}

	cfg.Source = NewSource(db, migrate.SQLite, "dbo")
	cfg.Log = NewLogStore(db, migrate.SQLite, "dbo", RunInfo{Session: "sess1234", StartID: cfg.StartID, EndID: cfg.EndID})
	cfg.Coordinator = NewCoordinator(db, h, WithWorkers(2), WithItemTimeout(time.Minute))
	if cfg.FetchBackoff == nil {
		cfg.FetchBackoff = &backoff.StopBackOff{}
	}
	return NewProcessor(cfg), db
}

func TestProcessorDrainsStaging(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, db := processorFixture(t, 7, h, Config{BatchSize: 3})

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(7, sum.Fetched)
	require.Equal(7, sum.Succeeded)
	require.Zero(sum.Failed)
	require.Equal(map[string]int{"app_base": 7}, sum.Rows)
	require.Equal(int64(7), sum.LastAppID)
	require.False(sum.Interrupted)
	require.False(sum.AllFailed())

	require.Equal(7, etltest.Count(t, db, "processing_log"))
	for id := int64(1); id <= 7; id++ {
		require.Equal("success", etltest.LogStatus(t, db, id))
	}

	rep := p.Metrics().Report("sess1234")
	require.Equal(7, rep.RecordsProcessed)
	require.Equal(7, rep.Succeeded)
	require.Len(rep.Batches, 3)
	require.Equal(3, rep.Batches[0].Items)
	require.Equal(3, rep.Batches[1].Items)
	require.Equal(1, rep.Batches[2].Items)
}

func TestProcessorResumesFromLog(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, db := processorFixture(t, 5, h, Config{BatchSize: 10})
	etltest.Exec(t, db,
		`INSERT INTO processing_log (app_id, status, session_id, processed_at) VALUES (1, 'success', 'prior', '2026-01-01')`,
		`INSERT INTO processing_log (app_id, status, failure_reason, session_id, processed_at) VALUES (2, 'failed', 'boom', 'prior', '2026-01-01')`,
	)

	// Failed applications are retried by default; only success blocks.
	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(4, sum.Fetched)
	require.Equal(4, sum.Succeeded)

	// The log is append-only. The retried application's original record
	// stands and the rewrite is dropped on the primary key.
	require.Equal(5, etltest.Count(t, db, "processing_log"))
	require.Equal("failed", etltest.LogStatus(t, db, 2))
}

func TestProcessorExcludesFailed(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, db := processorFixture(t, 5, h, Config{BatchSize: 10, ExcludeFailed: true})
	etltest.Exec(t, db,
		`INSERT INTO processing_log (app_id, status, session_id, processed_at) VALUES (1, 'success', 'prior', '2026-01-01')`,
		`INSERT INTO processing_log (app_id, status, failure_reason, session_id, processed_at) VALUES (2, 'failed', 'boom', 'prior', '2026-01-01')`,
	)

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(3, sum.Fetched)
	require.Equal(3, sum.Succeeded)
}

func TestProcessorRecordsFailure(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{
		process: func(ctx *etl.Context, conn *sql.Conn, item WorkItem, progress func(etl.AppState)) (map[string]int, error) {
			if item.AppID == 2 {
				return nil, etl.ErrValidation.New("missing App_ID attribute")
			}
			return happyProcess(ctx, conn, item, progress)
		},
	}
	p, db := processorFixture(t, 3, h, Config{BatchSize: 10})

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(3, sum.Fetched)
	require.Equal(2, sum.Succeeded)
	require.Equal(1, sum.Failed)
	require.False(sum.AllFailed())

	require.Equal("failed", etltest.LogStatus(t, db, 2))
	require.Equal("success", etltest.LogStatus(t, db, 1))
	require.Equal("success", etltest.LogStatus(t, db, 3))
}

func TestProcessorAllFailed(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{
		process: func(*etl.Context, *sql.Conn, WorkItem, func(etl.AppState)) (map[string]int, error) {
			return nil, etl.ErrValidation.New("malformed document")
		},
	}
	p, _ := processorFixture(t, 3, h, Config{BatchSize: 10})

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(3, sum.Fetched)
	require.Zero(sum.Succeeded)
	require.Equal(3, sum.Failed)
	require.True(sum.AllFailed())
}

func TestProcessorHonorsLimit(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, db := processorFixture(t, 7, h, Config{BatchSize: 3, Limit: 4})

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(4, sum.Fetched)
	require.Equal(4, sum.Succeeded)
	require.Equal(4, etltest.Count(t, db, "processing_log"))
	require.Equal(int64(4), sum.LastAppID)
}

func TestProcessorDryRunWritesNothing(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, db := processorFixture(t, 3, h, Config{BatchSize: 10, DryRun: true})

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(3, sum.Fetched)
	require.Equal(3, sum.Succeeded)
	require.Zero(etltest.Count(t, db, "processing_log"))
	require.Empty(p.cfg.Coordinator.Processes())

	rep := p.Metrics().Report("sess1234")
	require.Equal(3, rep.RecordsProcessed)
}

func TestProcessorInterruptedBeforeStart(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, _ := processorFixture(t, 3, h, Config{BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := p.Run(etl.NewContext(ctx))
	require.NoError(err)
	require.True(sum.Interrupted)
	require.Zero(sum.Fetched)
	require.Empty(h.seen)
}

func TestProcessorPartitionsAreDisjointAndComplete(t *testing.T) {
	require := require.New(t)
	db := etltest.OpenFile(t)
	etltest.CreateStaging(t, db)
	etltest.CreateLog(t, db)
	for id := int64(1); id <= 6; id++ {
		etltest.InsertApp(t, db, id, stagedXML(id))
	}

	run := func(rem int64, session string) *Summary {
		h := &fakeHandler{process: happyProcess}
		p := NewProcessor(Config{
			Source:       NewSource(db, migrate.SQLite, "dbo"),
			Log:          NewLogStore(db, migrate.SQLite, "dbo", RunInfo{Session: session}),
			Coordinator:  NewCoordinator(db, h, WithWorkers(2), WithItemTimeout(time.Minute)),
			BatchSize:    2,
			PartitionMod: 2,
			PartitionRem: rem,
			FetchBackoff: &backoff.StopBackOff{},
		})
		sum, err := p.Run(etl.NewContext(context.Background()))
		require.NoError(err)
		return sum
	}

	even := run(0, "sessaaaa")
	odd := run(1, "sessbbbb")
	require.Equal(3, even.Fetched)
	require.Equal(3, odd.Fetched)
	require.Equal(6, etltest.Count(t, db, "processing_log"))
	for id := int64(1); id <= 6; id++ {
		require.Equal("success", etltest.LogStatus(t, db, id))
	}
}

func TestProcessorRangeBounds(t *testing.T) {
	require := require.New(t)
	h := &fakeHandler{process: happyProcess}
	p, db := processorFixture(t, 7, h, Config{BatchSize: 10, StartID: 2, EndID: 5})

	sum, err := p.Run(etl.NewContext(context.Background()))
	require.NoError(err)
	require.Equal(4, sum.Fetched)
	require.Equal(4, etltest.Count(t, db, "processing_log"))
	require.Equal("", etltest.LogStatus(t, db, 1))
	require.Equal("success", etltest.LogStatus(t, db, 5))
}
