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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"
)

// fileConfig mirrors the run flags that make sense to keep in a file.
// Partitioning and range flags stay on the command line: they differ
// per invocation.
type fileConfig struct {
	Server    string `yaml:"server"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Pool      int    `yaml:"pool"`
	Contract  string `yaml:"contract"`
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   string `yaml:"timeout"`
	LogLevel  string `yaml:"log_level"`

	// Pointer so an explicit false in the file can override the flag's
	// true default.
	ExcludeFailed *bool `yaml:"exclude_failed"`
}

// applyConfigFile folds the YAML file under the flag values. A flag the
// operator set explicitly always wins over the file.
func (o *runOptions) applyConfigFile(cmd *cobra.Command) error {
	if o.configFile == "" {
		return nil
	}
	data, err := os.ReadFile(o.configFile)
	if err != nil {
		return fmt.Errorf("cannot read config file: %v", err)
	}
	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return fmt.Errorf("malformed config file %s: %v", o.configFile, err)
	}

	flags := cmd.Flags()
	if !flags.Changed("server") && fc.Server != "" {
		o.server = fc.Server
	}
	if !flags.Changed("port") && fc.Port != 0 {
		o.port = fc.Port
	}
	if !flags.Changed("database") && fc.Database != "" {
		o.database = fc.Database
	}
	if !flags.Changed("username") && fc.Username != "" {
		o.username = fc.Username
	}
	if !flags.Changed("password") && fc.Password != "" {
		o.password = fc.Password
	}
	if !flags.Changed("pool") && fc.Pool != 0 {
		o.pool = fc.Pool
	}
	if !flags.Changed("contract") && fc.Contract != "" {
		o.contract = fc.Contract
	}
	if !flags.Changed("workers") && fc.Workers != 0 {
		o.workers = fc.Workers
	}
	if !flags.Changed("batch-size") && fc.BatchSize != 0 {
		o.batchSize = fc.BatchSize
	}
	if !flags.Changed("log-level") && fc.LogLevel != "" {
		o.logLevel = fc.LogLevel
	}
	if !flags.Changed("exclude-failed") && fc.ExcludeFailed != nil {
		o.excludeFailed = *fc.ExcludeFailed
	}
	if !flags.Changed("timeout") && fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("bad timeout in config file: %v", err)
		}
		o.timeout = d
	}
	return nil
}

func (o *runOptions) validate() error {
	if o.contract == "" {
		return fmt.Errorf("--contract is required")
	}
	if o.server == "" {
		return fmt.Errorf("--server is required")
	}
	if o.database == "" {
		return fmt.Errorf("--database is required")
	}
	if o.workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if o.batchSize < 1 {
		return fmt.Errorf("--batch-size must be at least 1")
	}
	if o.limit < 0 {
		return fmt.Errorf("--limit cannot be negative")
	}
	if o.timeout <= 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	if o.instanceID < 0 || o.instanceCount < 0 {
		return fmt.Errorf("--instance-id and --instance-count cannot be negative")
	}
	if o.instanceCount > 0 && o.instanceID >= o.instanceCount {
		return fmt.Errorf("--instance-id must be below --instance-count")
	}
	if o.instanceCount == 0 && o.instanceID != 0 {
		return fmt.Errorf("--instance-id needs --instance-count")
	}
	if o.appIDStart < 0 || o.appIDEnd < 0 {
		return fmt.Errorf("--app-id-start and --app-id-end cannot be negative")
	}
	if o.appIDEnd > 0 && o.appIDStart > o.appIDEnd {
		return fmt.Errorf("--app-id-start is above --app-id-end")
	}
	return nil
}
