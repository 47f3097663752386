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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/appsink/appsink"
	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/migrate"
	"github.com/appsink/appsink/etl/pipeline"
)

type runOptions struct {
	configFile string

	server   string
	port     int
	database string
	username string
	password string
	pool     int

	contract string

	workers   int
	batchSize int
	limit     int
	timeout   time.Duration

	appIDStart    int64
	appIDEnd      int64
	instanceID    int64
	instanceCount int64

	excludeFailed bool
	dryRun        bool
	logLevel      string
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending applications from the staging table",
	Long: `run drains the staging table in app_id order. Each application is
validated, mapped, and committed in its own transaction, and its outcome
is appended to the processing log. Applications already logged as
success are never fetched again, so rerunning the same command resumes
where the previous run stopped.

SIGHUP reloads the contract document without stopping the run. SIGINT
and SIGTERM stop the fetch loop and let in-flight applications finish.

Exit codes: 0 on success, 1 when interrupted, 2 on configuration or
contract errors, 3 when every fetched application failed.`,
	Args: cobra.NoArgs,
	RunE: runMigration,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configFile, "config", "", "YAML config file; explicit flags override its values")
	f.StringVar(&runOpts.server, "server", "", "SQL Server host")
	f.IntVar(&runOpts.port, "port", 1433, "SQL Server port")
	f.StringVar(&runOpts.database, "database", "", "database name")
	f.StringVar(&runOpts.username, "username", "", "SQL login; empty uses the ambient credentials")
	f.StringVar(&runOpts.password, "password", "", "SQL login password")
	f.IntVar(&runOpts.pool, "pool", 0, "connection pool cap; 0 sizes it from --workers")
	f.StringVar(&runOpts.contract, "contract", "", "mapping contract JSON document")
	f.IntVar(&runOpts.workers, "workers", pipeline.DefaultWorkers, "concurrent applications")
	f.IntVar(&runOpts.batchSize, "batch-size", pipeline.DefaultBatchSize, "staging fetch size")
	f.IntVar(&runOpts.limit, "limit", 0, "cap on applications this run; 0 is unlimited")
	f.DurationVar(&runOpts.timeout, "timeout", pipeline.DefaultTimeout, "per-application processing timeout")
	f.Int64Var(&runOpts.appIDStart, "app-id-start", 0, "lowest application id to process")
	f.Int64Var(&runOpts.appIDEnd, "app-id-end", 0, "highest application id to process; 0 is unbounded")
	f.Int64Var(&runOpts.instanceID, "instance-id", 0, "zero-based id of this instance")
	f.Int64Var(&runOpts.instanceCount, "instance-count", 0, "number of cooperating instances; 0 disables partitioning")
	f.BoolVar(&runOpts.excludeFailed, "exclude-failed", true, "treat applications already logged as failed as final; =false retries them")
	f.BoolVar(&runOpts.dryRun, "dry-run", false, "validate and map without writing rows or log records")
	f.StringVar(&runOpts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.AddCommand(runCmd)
}

func runMigration(cmd *cobra.Command, _ []string) error {
	if err := runOpts.applyConfigFile(cmd); err != nil {
		return err
	}
	if err := runOpts.validate(); err != nil {
		return err
	}

	session, err := newSessionID()
	if err != nil {
		return err
	}
	closeLog, err := configureLogging(runOpts.logLevel, session)
	if err != nil {
		return err
	}
	defer closeLog()

	// SIGINT and SIGTERM stop feeding new applications; in-flight ones
	// finish and are logged before the run returns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, runOpts)
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := appsink.New(ctx, appsink.Config{
		ContractPath: runOpts.contract,
		Dialect:      migrate.MSSQL,
		Catalog:      migrate.NewCatalogReader(db),
		DryRun:       runOpts.dryRun,
	})
	if err != nil {
		return err
	}

	// SIGHUP swaps in a freshly loaded contract between applications.
	// A reload failure keeps the running contract in place.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := eng.ReloadContract(ctx); err != nil {
				logrus.WithError(err).Error("contract reload failed")
				continue
			}
			logrus.WithField("contract", fmt.Sprintf("%016x", eng.Contract().Fingerprint)).
				Info("contract reloaded")
		}
	}()

	schema := eng.Contract().TargetSchema
	proc := pipeline.NewProcessor(pipeline.Config{
		Source: pipeline.NewSource(db, migrate.MSSQL, schema),
		Log: pipeline.NewLogStore(db, migrate.MSSQL, schema, pipeline.RunInfo{
			Session: session,
			StartID: runOpts.appIDStart,
			EndID:   runOpts.appIDEnd,
		}),
		Coordinator: pipeline.NewCoordinator(db, eng,
			pipeline.WithWorkers(runOpts.workers),
			pipeline.WithItemTimeout(runOpts.timeout)),
		BatchSize:     runOpts.batchSize,
		Limit:         runOpts.limit,
		StartID:       runOpts.appIDStart,
		EndID:         runOpts.appIDEnd,
		PartitionMod:  runOpts.instanceCount,
		PartitionRem:  runOpts.instanceID,
		ExcludeFailed: runOpts.excludeFailed,
		DryRun:        runOpts.dryRun,
	})

	logrus.WithFields(logrus.Fields{
		"session":  session,
		"workers":  runOpts.workers,
		"batch":    runOpts.batchSize,
		"dry_run":  runOpts.dryRun,
		"contract": fmt.Sprintf("%016x", eng.Contract().Fingerprint),
	}).Info("run starting")

	sum, runErr := proc.Run(etl.NewContext(ctx))

	metricsPath := fmt.Sprintf("appsink_metrics_%s.json", session)
	if err := proc.Metrics().Report(session).WriteFile(metricsPath); err != nil {
		logrus.WithError(err).Warn("cannot write the metrics document")
	}

	logrus.WithFields(logrus.Fields{
		"fetched":     sum.Fetched,
		"succeeded":   sum.Succeeded,
		"failed":      sum.Failed,
		"last_app_id": sum.LastAppID,
		"elapsed":     sum.Elapsed.Round(time.Millisecond).String(),
		"interrupted": sum.Interrupted,
	}).Info("run finished")

	if runErr != nil {
		return runErr
	}
	switch {
	case sum.Interrupted:
		exitStatus = exitInterrupted
	case sum.AllFailed():
		exitStatus = exitAllFailed
	}
	return nil
}

// newSessionID returns a fresh v4 uuid with the dashes stripped, the
// form the processing log stores.
func newSessionID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// configureLogging sets the level and tees log output into a per-run
// file next to the working directory.
func configureLogging(level, session string) (func(), error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	logrus.SetLevel(lvl)

	name := fmt.Sprintf("appsink_%s.log", session)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %v", name, err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		logrus.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

func openDatabase(ctx context.Context, o runOptions) (*sql.DB, error) {
	query := url.Values{}
	query.Add("database", o.database)
	query.Add("app name", "appsink")
	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     fmt.Sprintf("%s:%d", o.server, o.port),
		RawQuery: query.Encode(),
	}
	if o.username != "" {
		u.User = url.UserPassword(o.username, o.password)
	}

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, etl.ErrConnection.New(err)
	}
	pool := o.pool
	if pool == 0 {
		// One pinned connection per worker, plus headroom for the
		// staging fetches and the log writes.
		pool = o.workers + 2
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, etl.ErrConnection.New(err)
	}
	return db, nil
}
