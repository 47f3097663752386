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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appsink/appsink/etl"
	"github.com/appsink/appsink/etl/parse"
)

var checkContractCmd = &cobra.Command{
	Use:   "check-contract <contract.json>",
	Short: "Load and validate a mapping contract without touching the database",
	Long: `check-contract compiles the contract the way run would: expressions
are parsed, enum and filter references resolved, the insertion order
checked against the table sections. Column metadata normally read from
the destination catalog is skipped, so a contract that passes here can
still name columns the destination lacks.`,
	Args: cobra.ExactArgs(1),
	RunE: checkContract,
}

func init() {
	rootCmd.AddCommand(checkContractCmd)
}

func checkContract(cmd *cobra.Command, args []string) error {
	c, err := etl.NewLoader(parse.Parse).LoadFile(context.Background(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "contract OK\n")
	fmt.Fprintf(out, "  fingerprint:  %016x\n", c.Fingerprint)
	fmt.Fprintf(out, "  schema:       %s\n", c.TargetSchema)
	fmt.Fprintf(out, "  tables:       %d\n", len(c.Tables))
	for _, name := range c.TableInsertionOrder {
		t := c.Tables[name]
		fmt.Fprintf(out, "    %-24s %d mappings, %d columns\n", name, len(t.Mappings), len(t.Columns))
	}
	fmt.Fprintf(out, "  enums:        %d\n", len(c.Enums))
	fmt.Fprintf(out, "  filter rules: %d\n", len(c.FilterRules))
	return nil
}
