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

// Command appsink migrates XML application blobs from a staging table into a
// normalized SQL Server schema under a declarative mapping contract.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes are part of the orchestration contract: wrapper scripts launch
// chunked instances and branch on them.
const (
	exitOK          = 0
	exitInterrupted = 1
	exitConfig      = 2
	exitAllFailed   = 3
)

// exitStatus carries outcomes that are not command errors: an interrupted
// run or a run where nothing landed.
var exitStatus = exitOK

var rootCmd = &cobra.Command{
	Use:   "appsink",
	Short: "Contract-driven XML to SQL Server migration",
	Long: `appsink drains a staging table of XML application blobs, maps each blob
to destination rows under a JSON mapping contract, and bulk-inserts the
rows one atomic transaction per application.

Runs resume from the processing log, so a crashed or interrupted run is
restarted with the same command line. Cooperating instances split the
staging table with --instance-id/--instance-count.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "appsink: "+err.Error())
		os.Exit(exitConfig)
	}
	os.Exit(exitStatus)
}
