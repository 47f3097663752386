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
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/appsink/appsink/etl"
)

const (
	// DefaultWorkers is the pool size when the run does not set one.
	DefaultWorkers = 4
	// DefaultTimeout bounds one application's processing.
	DefaultTimeout = 300 * time.Second
	// DefaultBatchSize is the staging fetch size.
	DefaultBatchSize = 500
)

// Status is the terminal outcome of one application.
type Status string

const (
	// StatusSuccess means the application's rows are committed.
	StatusSuccess Status = "success"
	// StatusFailed means the application was rejected or rolled back.
	StatusFailed Status = "failed"
)

// Result is what one application's processing came to.
type Result struct {
	AppID    int64
	Status   Status
	Reason   string
	Inserted map[string]int
	Warnings int
	Duration time.Duration
	Worker   int
}

// Rows returns the total inserted across tables.
func (r Result) Rows() int {
	n := 0
	for _, c := range r.Inserted {
		n += c
	}
	return n
}

// Handler processes one application end to end on the worker's
// connection: validate, map, migrate. It reports stage completion
// through progress so the in-flight registry stays truthful.
type Handler interface {
	Process(ctx *etl.Context, conn *sql.Conn, item WorkItem, progress func(etl.AppState)) (map[string]int, error)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWorkers sets the pool size.
func WithWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.workers = n
	}
}

// WithItemTimeout bounds each application's processing time.
func WithItemTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithTracer sets the tracer per-application contexts start spans from.
func WithTracer(t opentracing.Tracer) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

// Coordinator fans a batch of applications out to a fixed worker pool.
// Each worker pins one connection for its lifetime and processes one
// application at a time; a failure in one application never touches
// another worker's connection or transaction.
type Coordinator struct {
	db      *sql.DB
	handler Handler
	list    *etl.ProcessList
	tracer  opentracing.Tracer
	workers int
	timeout time.Duration
}

// NewCoordinator returns a Coordinator running handler on db.
func NewCoordinator(db *sql.DB, handler Handler, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		db:      db,
		handler: handler,
		list:    etl.NewProcessList(),
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = 1
	}
	return c
}

// Run processes one batch and returns results in completion order. A
// cancelled context stops the feed; applications already started finish
// inside their own timeout. The error reports pool infrastructure
// failures only; per-application failures come back as failed results.
func (c *Coordinator) Run(ctx *etl.Context, items []WorkItem) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	work := make(chan WorkItem)
	resCh := make(chan Result, len(items))

	eg, egCtx := ctx.NewErrgroup()
	for i := 0; i < c.workers; i++ {
		worker := i
		eg.Go(func() error {
			return c.runWorker(egCtx, worker, work, resCh)
		})
	}
	eg.Go(func() error {
		defer close(work)
		for _, item := range items {
			if egCtx.Err() != nil {
				return nil
			}
			select {
			case work <- item:
			case <-egCtx.Done():
				return nil
			}
		}
		return nil
	})

	err := eg.Wait()
	close(resCh)
	results := make([]Result, 0, len(resCh))
	for r := range resCh {
		results = append(results, r)
	}
	return results, err
}

// Processes snapshots the in-flight registry.
func (c *Coordinator) Processes() []etl.AppProcess {
	return c.list.Processes()
}

// Logged marks an application's log record as written and releases it
// from the registry.
func (c *Coordinator) Logged(r Result) {
	if _, ok := c.list.State(r.AppID); !ok {
		return
	}
	var err error
	if r.Status == StatusFailed {
		err = c.list.Fail(r.AppID, r.Reason)
	} else {
		err = c.list.Transition(r.AppID, etl.StateLoggedSuccess)
	}
	if err != nil {
		logrus.WithField("app_id", r.AppID).WithError(err).Error("process list out of step with results")
	}
	c.list.Done(r.AppID)
}

// Release drops an application from the registry without a terminal
// transition. Dry runs use it since nothing is logged.
func (c *Coordinator) Release(appID int64) {
	c.list.Done(appID)
}

// Kill cancels one in-flight application.
func (c *Coordinator) Kill(appID int64) {
	c.list.Kill(appID)
}

func (c *Coordinator) runWorker(ctx *etl.Context, worker int, work <-chan WorkItem, results chan<- Result) error {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return etl.ErrConnection.New(err)
	}
	defer conn.Close()

	for item := range work {
		results <- c.processItem(worker, conn, item)
	}
	return nil
}

// processItem runs one application on its own clock: a stop signal
// stops the feeder, but an application already started gets to finish
// or time out on its own.
func (c *Coordinator) processItem(worker int, conn *sql.Conn, item WorkItem) Result {
	start := time.Now()

	inner, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	opts := []etl.ContextOption{
		etl.WithApplication(item.AppID),
		etl.WithWorker(worker),
	}
	if c.tracer != nil {
		opts = append(opts, etl.WithTracer(c.tracer))
	}
	appCtx := etl.NewContext(inner, opts...)

	appCtx, err := c.list.Add(appCtx, item.AppID, worker)
	if err != nil {
		return Result{
			AppID:    item.AppID,
			Status:   StatusFailed,
			Reason:   err.Error(),
			Duration: time.Since(start),
			Worker:   worker,
		}
	}

	counts, err := c.handler.Process(appCtx, conn, item, func(s etl.AppState) {
		if terr := c.list.Transition(item.AppID, s); terr != nil {
			logrus.WithField("app_id", item.AppID).WithError(terr).Error("illegal state transition")
		}
	})

	warnings := appCtx.Warnings()
	for _, w := range warnings {
		logrus.WithFields(logrus.Fields{
			"app_id": w.AppID,
			"table":  w.Table,
			"column": w.Column,
			"worker": worker,
		}).Warn(w.Message)
	}

	r := Result{
		AppID:    item.AppID,
		Inserted: counts,
		Warnings: len(warnings),
		Duration: time.Since(start),
		Worker:   worker,
	}
	if err != nil {
		if inner.Err() == context.DeadlineExceeded {
			err = etl.ErrAppTimeout.New(item.AppID, c.timeout)
		}
		if etl.ErrTxAtomicity.Is(err) {
			logrus.WithFields(logrus.Fields{
				"app_id": item.AppID,
				"worker": worker,
			}).Error(err)
		}
		r.Status = StatusFailed
		r.Reason = err.Error()
		r.Inserted = nil
		return r
	}
	r.Status = StatusSuccess
	return r
}
