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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/appsink/appsink/etl"
)

// Staging fetches survive this many transient failures before the run
// gives up.
const fetchRetries = 4

// Config assembles a Processor.
type Config struct {
	Source      *Source
	Coordinator *Coordinator
	Log         *LogStore
	Metrics     *Metrics

	// BatchSize is the staging fetch size, DefaultBatchSize when unset.
	BatchSize int
	// Limit caps the run's total applications. Zero processes everything
	// pending.
	Limit int

	StartID       int64
	EndID         int64
	PartitionMod  int64
	PartitionRem  int64
	ExcludeFailed bool

	// DryRun validates and maps but writes neither rows nor log records.
	DryRun bool

	// FetchBackoff overrides the staging fetch retry policy.
	FetchBackoff backoff.BackOff
}

// Summary is what one run came to.
type Summary struct {
	Fetched     int
	Succeeded   int
	Failed      int
	Rows        map[string]int
	LastAppID   int64
	Elapsed     time.Duration
	Interrupted bool
}

// AllFailed reports whether the run had work and none of it landed.
func (s *Summary) AllFailed() bool {
	return s.Fetched > 0 && s.Succeeded == 0
}

// Processor drives the pipeline end to end: fetch a batch in cursor
// order, hand it to the coordinator, record each outcome, advance the
// cursor, repeat until the staging table runs dry.
type Processor struct {
	cfg Config
}

// NewProcessor returns a Processor for one run.
func NewProcessor(cfg Config) *Processor {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	return &Processor{cfg: cfg}
}

// Metrics returns the run's metrics collector.
func (p *Processor) Metrics() *Metrics {
	return p.cfg.Metrics
}

// Run loops until a fetch comes back empty, the limit is reached, or
// the context is cancelled. Restarting after any stop resumes from the
// processing log; the cursor itself is never persisted.
func (p *Processor) Run(ctx *etl.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Rows: make(map[string]int)}
	defer func() {
		sum.Elapsed = time.Since(start)
	}()

	var cursor int64
	for {
		if ctx.Err() != nil {
			sum.Interrupted = true
			return sum, nil
		}

		limit := p.cfg.BatchSize
		if p.cfg.Limit > 0 {
			left := p.cfg.Limit - sum.Fetched
			if left <= 0 {
				return sum, nil
			}
			limit = min(limit, left)
		}

		items, err := p.fetch(ctx, p.workQuery(cursor, limit))
		if err != nil {
			return sum, err
		}
		if len(items) == 0 {
			return sum, nil
		}
		sum.Fetched += len(items)

		batchStart := time.Now()
		results, runErr := p.cfg.Coordinator.Run(ctx, items)
		for _, r := range results {
			if err := p.record(ctx, r); err != nil {
				return sum, err
			}
			p.tally(sum, r)
		}
		p.cfg.Metrics.ObserveBatch(len(items), time.Since(batchStart))
		if runErr != nil {
			return sum, runErr
		}

		for _, it := range items {
			if it.AppID > cursor {
				cursor = it.AppID
			}
		}
		sum.LastAppID = cursor

		logrus.WithFields(logrus.Fields{
			"batch":     len(items),
			"succeeded": sum.Succeeded,
			"failed":    sum.Failed,
			"cursor":    cursor,
		}).Info("batch complete")
	}
}

func (p *Processor) workQuery(cursor int64, limit int) WorkQuery {
	return WorkQuery{
		Cursor:        cursor,
		Limit:         limit,
		PartitionMod:  p.cfg.PartitionMod,
		PartitionRem:  p.cfg.PartitionRem,
		StartID:       p.cfg.StartID,
		EndID:         p.cfg.EndID,
		ExcludeFailed: p.cfg.ExcludeFailed,
	}
}

// fetch pulls the next batch, retrying transient staging failures with
// exponential backoff.
func (p *Processor) fetch(ctx *etl.Context, q WorkQuery) ([]WorkItem, error) {
	var items []WorkItem
	op := func() error {
		var err error
		items, err = p.cfg.Source.GetWork(ctx, q)
		if err != nil && !etl.ErrConnection.Is(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := p.cfg.FetchBackoff
	if policy == nil {
		policy = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries)
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return items, nil
}

// record writes the outcome and releases the application from the
// in-flight registry. Results are recorded in arrival order.
func (p *Processor) record(ctx *etl.Context, r Result) error {
	if p.cfg.DryRun {
		p.cfg.Coordinator.Release(r.AppID)
		p.cfg.Metrics.Observe(r)
		return nil
	}
	if err := p.cfg.Log.Record(ctx, r); err != nil {
		return err
	}
	p.cfg.Coordinator.Logged(r)
	p.cfg.Metrics.Observe(r)
	return nil
}

func (p *Processor) tally(sum *Summary, r Result) {
	switch r.Status {
	case StatusSuccess:
		sum.Succeeded++
		for table, n := range r.Inserted {
			sum.Rows[table] += n
		}
	case StatusFailed:
		sum.Failed++
		logrus.WithFields(logrus.Fields{
			"app_id": r.AppID,
			"reason": r.Reason,
		}).Warn("application failed")
	}
}
