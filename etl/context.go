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

import (
	"context"
	"fmt"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"
)

// Warning carries a non-fatal condition observed while an application was
// being mapped or migrated. Warnings never fail the application; they are
// reported in the processing log and the run metrics.
type Warning struct {
	AppID   int64
	Table   string
	Column  string
	Message string
}

// Context of one application's journey through the pipeline. It carries the
// cancellation context of the worker, the tracer, and the warnings collected
// along the way. Deriving a context with Span or WithContext shares the
// warning sink with the parent.
type Context struct {
	context.Context
	appID    int64
	workerID int
	tracer   opentracing.Tracer
	rootSpan opentracing.Span
	sink     *warningSink
}

type warningSink struct {
	mu       sync.Mutex
	warnings []Warning
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithTracer sets the tracer spans are started from.
func WithTracer(t opentracing.Tracer) ContextOption {
	return func(ctx *Context) {
		ctx.tracer = t
	}
}

// WithApplication pins the context to the application being processed.
func WithApplication(appID int64) ContextOption {
	return func(ctx *Context) {
		ctx.appID = appID
	}
}

// WithWorker records which pool worker owns the context.
func WithWorker(id int) ContextOption {
	return func(ctx *Context) {
		ctx.workerID = id
	}
}

// WithRootSpan sets the span all child spans descend from.
func WithRootSpan(span opentracing.Span) ContextOption {
	return func(ctx *Context) {
		ctx.rootSpan = span
	}
}

// NewContext creates a Context from a cancellation context and options.
func NewContext(ctx context.Context, opts ...ContextOption) *Context {
	c := &Context{
		Context: ctx,
		tracer:  opentracing.NoopTracer{},
		sink:    &warningSink{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewEmptyContext is used in tests where no cancellation or tracing matters.
func NewEmptyContext() *Context { return NewContext(context.TODO()) }

// AppID returns the application the context is processing, zero when the
// context is not bound to one.
func (ctx *Context) AppID() int64 { return ctx.appID }

// WorkerID returns the owning pool worker.
func (ctx *Context) WorkerID() int { return ctx.workerID }

// Span creates a new tracing span and a context carrying it, so that
// children of the returned context descend from the new span.
func (ctx *Context) Span(opName string, opts ...opentracing.StartSpanOption) (opentracing.Span, *Context) {
	parent := ctx.rootSpan
	if parent != nil {
		opts = append(opts, opentracing.ChildOf(parent.Context()))
	}
	span := ctx.tracer.StartSpan(opName, opts...)

	newCtx := *ctx
	newCtx.rootSpan = span
	return span, &newCtx
}

// WithContext swaps the inner cancellation context, keeping everything else.
// Used to attach per-application timeouts.
func (ctx *Context) WithContext(inner context.Context) *Context {
	newCtx := *ctx
	newCtx.Context = inner
	return &newCtx
}

// Warn records a non-fatal condition.
func (ctx *Context) Warn(table, column, format string, args ...interface{}) {
	ctx.sink.mu.Lock()
	defer ctx.sink.mu.Unlock()
	ctx.sink.warnings = append(ctx.sink.warnings, Warning{
		AppID:   ctx.appID,
		Table:   table,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	})
}

// Warnings returns the warnings recorded so far.
func (ctx *Context) Warnings() []Warning {
	ctx.sink.mu.Lock()
	defer ctx.sink.mu.Unlock()
	out := make([]Warning, len(ctx.sink.warnings))
	copy(out, ctx.sink.warnings)
	return out
}

// ClearWarnings drops all recorded warnings.
func (ctx *Context) ClearWarnings() {
	ctx.sink.mu.Lock()
	defer ctx.sink.mu.Unlock()
	ctx.sink.warnings = nil
}

// NewErrgroup returns an errgroup whose inner context replaces the one in
// the returned Context, so that failures in the group cancel work started
// from it.
func (ctx *Context) NewErrgroup() (*errgroup.Group, *Context) {
	g, sub := errgroup.WithContext(ctx.Context)
	newCtx := *ctx
	newCtx.Context = sub
	return g, &newCtx
}
