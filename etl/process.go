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
	"sort"
	"sync"
	"time"
)

// AppState is one stage of an application's journey through the pipeline.
type AppState int

const (
	// StateNew means the application has been fetched but not validated.
	StateNew AppState = iota
	// StateValidated means the XML passed pre-processing validation.
	StateValidated
	// StateMapped means the row set has been produced.
	StateMapped
	// StateCommitted means the destination transaction committed.
	StateCommitted
	// StateLoggedSuccess is terminal: a success log record exists.
	StateLoggedSuccess
	// StateLoggedFailed is terminal: a failed log record exists.
	StateLoggedFailed
)

func (s AppState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateValidated:
		return "validated"
	case StateMapped:
		return "mapped"
	case StateCommitted:
		return "committed"
	case StateLoggedSuccess:
		return "logged_success"
	case StateLoggedFailed:
		return "logged_failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is allowed from s.
func (s AppState) Terminal() bool {
	return s == StateLoggedSuccess || s == StateLoggedFailed
}

// next returns the only legal forward state. Any non-terminal state may also
// move to StateLoggedFailed.
func (s AppState) next() AppState {
	switch s {
	case StateNew:
		return StateValidated
	case StateValidated:
		return StateMapped
	case StateMapped:
		return StateCommitted
	case StateCommitted:
		return StateLoggedSuccess
	}
	return s
}

// AppProcess is one in-flight application.
type AppProcess struct {
	AppID     int64
	Worker    int
	State     AppState
	Reason    string
	StartedAt time.Time
	Kill      context.CancelFunc
}

// Seconds returns how long the application has been in flight.
func (p *AppProcess) Seconds() uint64 {
	return uint64(time.Since(p.StartedAt) / time.Second)
}

// ProcessList tracks every in-flight application and enforces the legal
// state transitions. Safe for concurrent use by the coordinator's workers.
type ProcessList struct {
	mu    sync.RWMutex
	procs map[int64]*AppProcess
}

// NewProcessList creates an empty process list.
func NewProcessList() *ProcessList {
	return &ProcessList{procs: make(map[int64]*AppProcess)}
}

// Add registers an application in StateNew and returns a context whose
// cancellation kills just that application.
func (pl *ProcessList) Add(ctx *Context, appID int64, worker int) (*Context, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if _, ok := pl.procs[appID]; ok {
		return nil, ErrProcessState.New(appID, pl.procs[appID].State, StateNew)
	}

	inner, cancel := context.WithCancel(ctx.Context)
	pl.procs[appID] = &AppProcess{
		AppID:     appID,
		Worker:    worker,
		State:     StateNew,
		StartedAt: time.Now(),
		Kill:      cancel,
	}
	return ctx.WithContext(inner), nil
}

// Transition moves an application forward, or to StateLoggedFailed from any
// non-terminal state.
func (pl *ProcessList) Transition(appID int64, to AppState) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	p, ok := pl.procs[appID]
	if !ok {
		return ErrProcessMissing.New(appID)
	}
	if p.State.Terminal() || (to != p.State.next() && to != StateLoggedFailed) {
		return ErrProcessState.New(appID, p.State, to)
	}
	p.State = to
	return nil
}

// Fail records the failure reason and moves the application to
// StateLoggedFailed.
func (pl *ProcessList) Fail(appID int64, reason string) error {
	if err := pl.Transition(appID, StateLoggedFailed); err != nil {
		return err
	}
	pl.mu.Lock()
	pl.procs[appID].Reason = reason
	pl.mu.Unlock()
	return nil
}

// Done removes a terminal application from the list.
func (pl *ProcessList) Done(appID int64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if p, ok := pl.procs[appID]; ok {
		p.Kill()
		delete(pl.procs, appID)
	}
}

// Kill cancels one in-flight application.
func (pl *ProcessList) Kill(appID int64) {
	pl.mu.RLock()
	p, ok := pl.procs[appID]
	pl.mu.RUnlock()
	if ok {
		p.Kill()
	}
}

// KillAll cancels every in-flight application.
func (pl *ProcessList) KillAll() {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	for _, p := range pl.procs {
		p.Kill()
	}
}

// Processes returns a snapshot ordered by application id.
func (pl *ProcessList) Processes() []AppProcess {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	out := make([]AppProcess, 0, len(pl.procs))
	for _, p := range pl.procs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out
}

// State returns the current state of one application.
func (pl *ProcessList) State(appID int64) (AppState, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	p, ok := pl.procs[appID]
	if !ok {
		return StateNew, false
	}
	return p.State, true
}
