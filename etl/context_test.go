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
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/require"
)

func TestContextOptions(t *testing.T) {
	require := require.New(t)

	ctx := NewContext(context.Background(),
		WithApplication(1001),
		WithWorker(3),
	)
	require.Equal(int64(1001), ctx.AppID())
	require.Equal(3, ctx.WorkerID())
}

func TestContextWarnings(t *testing.T) {
	require := require.New(t)

	ctx := NewContext(context.Background(), WithApplication(1001))
	ctx.Warn("contact_base", "last_name", "value truncated from %d to %d", 60, 50)
	ctx.Warn("app_base", "", "duplicate application")

	warnings := ctx.Warnings()
	require.Len(warnings, 2)
	require.Equal(Warning{
		AppID:   1001,
		Table:   "contact_base",
		Column:  "last_name",
		Message: "value truncated from 60 to 50",
	}, warnings[0])

	ctx.ClearWarnings()
	require.Empty(ctx.Warnings())
}

func TestContextSpanSharesWarnings(t *testing.T) {
	require := require.New(t)

	ctx := NewContext(context.Background(), WithApplication(7))
	span, child := ctx.Span("mapper.Apply")
	defer span.Finish()

	child.Warn("app_base", "app_date", "unparseable date")
	require.Len(ctx.Warnings(), 1)
}

func TestContextSpanParentage(t *testing.T) {
	require := require.New(t)

	tracer := mocktracer.New()
	ctx := NewContext(context.Background(), WithTracer(tracer))

	root, ctx := ctx.Span("process_application")
	child, _ := ctx.Span("bulk_insert")
	child.Finish()
	root.Finish()

	spans := tracer.FinishedSpans()
	require.Len(spans, 2)
	require.Equal("bulk_insert", spans[0].OperationName)
	require.Equal("process_application", spans[1].OperationName)
	require.Equal(spans[1].SpanContext.SpanID, spans[0].ParentID)
	require.Zero(spans[1].ParentID)
}

func TestContextWithContext(t *testing.T) {
	require := require.New(t)

	inner, cancel := context.WithCancel(context.Background())
	ctx := NewContext(context.Background(), WithApplication(9)).WithContext(inner)

	require.NoError(ctx.Err())
	cancel()
	require.Error(ctx.Err())
	require.Equal(int64(9), ctx.AppID())
}

func TestContextErrgroup(t *testing.T) {
	require := require.New(t)

	ctx := NewEmptyContext()
	g, gctx := ctx.NewErrgroup()

	boom := errors.New("boom")
	g.Go(func() error { return boom })
	g.Go(func() error {
		// A failing sibling cancels the group's context.
		<-gctx.Done()
		return nil
	})

	require.Equal(boom, g.Wait())
}
