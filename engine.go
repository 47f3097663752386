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

// Package appsink migrates XML application blobs from a staging table into a
// normalized destination schema, one application at a time, under a
// declarative mapping contract.
package appsink

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/mapper"
	"github.com/appsink/appsink/etl/migrate"
	"github.com/appsink/appsink/etl/parse"
	"github.com/appsink/appsink/etl/pipeline"
)

// Config assembles an Engine.
type Config struct {
	// ContractPath is the mapping contract JSON document.
	ContractPath string
	// Dialect speaks the destination's SQL.
	Dialect migrate.Dialect
	// Catalog, when set, fills in column metadata for tables whose contract
	// section carries none.
	Catalog etl.ColumnReader
	// DryRun validates and maps applications without writing rows.
	DryRun bool
}

// Engine wires one loaded contract to the per-application pipeline:
// validation, mapping, duplicate detection, migration. It is the
// coordinator's Handler; a single Engine serves every worker concurrently.
type Engine struct {
	dialect migrate.Dialect
	loader  *etl.Loader
	path    string
	dryRun  bool

	mu        sync.RWMutex
	contract  *etl.Contract
	validator *mapper.Validator
	mapper    *mapper.Engine
	migrator  *migrate.Migrator
}

// New loads the contract and returns an Engine ready to process
// applications.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	loader := etl.NewLoader(parse.Parse)
	loader.Catalog = cfg.Catalog

	c, err := loader.LoadFile(ctx, cfg.ContractPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dialect: cfg.Dialect,
		loader:  loader,
		path:    cfg.ContractPath,
		dryRun:  cfg.DryRun,
	}
	e.install(c)

	logrus.WithFields(logrus.Fields{
		"contract":    cfg.ContractPath,
		"fingerprint": fmt.Sprintf("%016x", c.Fingerprint),
		"tables":      len(c.Tables),
	}).Info("contract loaded")
	return e, nil
}

func (e *Engine) install(c *etl.Contract) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contract = c
	e.validator = mapper.NewValidator(c)
	e.mapper = mapper.NewEngine(c)
	e.migrator = migrate.NewMigrator(c, e.dialect)
}

func (e *Engine) components() (*mapper.Validator, *mapper.Engine, *migrate.Migrator) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validator, e.mapper, e.migrator
}

// Contract returns the running contract.
func (e *Engine) Contract() *etl.Contract {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contract
}

// ReloadContract re-reads the contract document from disk. A document whose
// fingerprint matches the running contract leaves the engine untouched, so
// an operator can signal a reload without knowing whether the file changed.
// Applications in flight finish under the contract they started with.
func (e *Engine) ReloadContract(ctx context.Context) error {
	if e.path == "" {
		return etl.ErrContractInvalid.New("engine has no contract path to reload from")
	}
	c, err := e.loader.LoadFile(ctx, e.path)
	if err != nil {
		return err
	}
	if c.Fingerprint == e.Contract().Fingerprint {
		logrus.WithField("fingerprint", fmt.Sprintf("%016x", c.Fingerprint)).
			Info("contract unchanged, keeping the running model")
		return nil
	}
	e.install(c)
	logrus.WithFields(logrus.Fields{
		"contract":    e.path,
		"fingerprint": fmt.Sprintf("%016x", c.Fingerprint),
	}).Info("contract reloaded")
	return nil
}

// Process takes one application from staging blob to committed rows on the
// worker's connection. The document's own identifier must agree with the
// staging key; rows inserted under one id but logged under another would
// poison resumption. In dry-run mode mapping still happens and the returned
// counts are the rows that would have been written.
func (e *Engine) Process(ctx *etl.Context, conn *sql.Conn, item pipeline.WorkItem, progress func(etl.AppState)) (map[string]int, error) {
	validator, mapEngine, migrator := e.components()

	span, ctx := ctx.Span("process_application")
	defer span.Finish()

	res, err := validator.Validate(ctx, item.XML)
	if err != nil {
		return nil, err
	}
	if !res.CanProcess {
		return nil, etl.ErrValidation.New(res.Reason())
	}
	if res.AppID != item.AppID {
		return nil, etl.ErrValidation.New(fmt.Sprintf(
			"document carries id %d but the staging row is %d", res.AppID, item.AppID))
	}
	progress(etl.StateValidated)

	rs, err := mapEngine.Apply(ctx, item.AppID, res.Doc)
	if err != nil {
		return nil, err
	}
	progress(etl.StateMapped)

	if e.dryRun {
		counts := make(map[string]int, len(rs))
		for table, rows := range rs {
			counts[table] = len(rows)
		}
		return counts, nil
	}

	counts, err := migrator.Migrate(ctx, conn, rs)
	if err != nil {
		return nil, err
	}
	progress(etl.StateCommitted)
	return counts, nil
}
