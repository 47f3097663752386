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
	"encoding/json"
	"os"
	"sync"
	"time"
)

// BatchTiming records one batch's size and wall time.
type BatchTiming struct {
	Items      int   `json:"items"`
	DurationMS int64 `json:"duration_ms"`
}

// Metrics accumulates one run's counters. Safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	started   time.Time
	processed int
	succeeded int
	failed    int
	warnings  int
	rows      map[string]int
	batches   []BatchTiming
}

// NewMetrics returns an empty collector whose clock starts now.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now(), rows: make(map[string]int)}
}

// Observe folds one application's result in.
func (m *Metrics) Observe(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
	m.warnings += r.Warnings
	switch r.Status {
	case StatusSuccess:
		m.succeeded++
		for table, n := range r.Inserted {
			m.rows[table] += n
		}
	case StatusFailed:
		m.failed++
	}
}

// ObserveBatch records one batch round trip.
func (m *Metrics) ObserveBatch(items int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, BatchTiming{Items: items, DurationMS: d.Milliseconds()})
}

// Report is the metrics document written at the end of a run.
type Report struct {
	Session             string         `json:"session_id"`
	StartedAt           time.Time      `json:"started_at"`
	FinishedAt          time.Time      `json:"finished_at"`
	RecordsProcessed    int            `json:"records_processed"`
	Succeeded           int            `json:"succeeded"`
	Failed              int            `json:"failed"`
	Warnings            int            `json:"warnings"`
	SuccessRate         float64        `json:"success_rate"`
	ThroughputPerMinute float64        `json:"throughput_per_minute"`
	TableRowCounts      map[string]int `json:"table_row_counts"`
	Batches             []BatchTiming  `json:"batches"`
}

// Report renders the document for one session.
func (m *Metrics) Report(session string) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	r := &Report{
		Session:          session,
		StartedAt:        m.started.UTC(),
		FinishedAt:       now.UTC(),
		RecordsProcessed: m.processed,
		Succeeded:        m.succeeded,
		Failed:           m.failed,
		Warnings:         m.warnings,
		TableRowCounts:   make(map[string]int, len(m.rows)),
		Batches:          append([]BatchTiming(nil), m.batches...),
	}
	for t, n := range m.rows {
		r.TableRowCounts[t] = n
	}
	if m.processed > 0 {
		r.SuccessRate = float64(m.succeeded) / float64(m.processed)
	}
	if mins := now.Sub(m.started).Minutes(); mins > 0 {
		r.ThroughputPerMinute = float64(m.processed) / mins
	}
	return r
}

// WriteFile writes the document as indented JSON.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
