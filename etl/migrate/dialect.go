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

package migrate

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/appsink/appsink/etl"
)

// Dialect abstracts the differences between the SQL Server destination and
// the sqlite database the test suite runs against. Everything that writes
// SQL in this package goes through one of these.
type Dialect interface {
	// Name identifies the dialect in logs and connection setup.
	Name() string
	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string
	// QualifyTable quotes and joins a schema-qualified table name.
	// Dialects without schema support ignore the schema.
	QualifyTable(schema, table string) string
	// Placeholder returns the parameter marker for the nth argument,
	// counting from 1.
	Placeholder(n int) string
	// NoLock is the table hint for non-locking reads, empty when the
	// dialect has none.
	NoLock() string
	// ByteLength wraps an expression so it yields its size in bytes.
	ByteLength(expr string) string
	// Top is the SELECT-list row cap prefix, empty when the dialect
	// paginates with a trailing clause instead.
	Top(n int) string
	// Limit is the trailing row cap clause, empty when the dialect
	// paginates with Top.
	Limit(n int) string
	// MaxParams is the number of bind parameters a single statement may
	// carry. Statements in this package are chunked to stay under it.
	MaxParams() int
	// SupportsBulkCopy reports whether BulkCopyStatement is usable.
	SupportsBulkCopy() bool
	// BulkCopyStatement returns the statement that opens a bulk copy
	// into the given columns when the dialect supports one.
	BulkCopyStatement(schema, table string, columns []string) string
	// IdentityInsert returns the statement toggling explicit key
	// inserts for a table, and false when the dialect needs none.
	IdentityInsert(schema, table string, on bool) (string, bool)
	// ConstraintError maps a driver error to one of the constraint
	// kinds, or returns false when the error is not a recognized
	// constraint violation.
	ConstraintError(table string, err error) (error, bool)
}

// MSSQL is the SQL Server destination dialect.
var MSSQL Dialect = mssqlDialect{}

// SQLite drives the file and in-memory databases used by tests and
// local dry runs.
var SQLite Dialect = sqliteDialect{}

type mssqlDialect struct{}

func (mssqlDialect) Name() string { return "mssql" }

func (mssqlDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d mssqlDialect) QualifyTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (mssqlDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (mssqlDialect) NoLock() string { return " WITH (NOLOCK)" }

func (mssqlDialect) ByteLength(expr string) string { return "DATALENGTH(" + expr + ")" }

func (mssqlDialect) Top(n int) string { return fmt.Sprintf("TOP (%d) ", n) }

func (mssqlDialect) Limit(int) string { return "" }

// TDS caps a request at 2100 parameters. The lower figure leaves room
// for the markers the driver adds on its own.
func (mssqlDialect) MaxParams() int { return 2000 }

func (mssqlDialect) SupportsBulkCopy() bool { return true }

func (mssqlDialect) BulkCopyStatement(schema, table string, columns []string) string {
	name := table
	if schema != "" {
		name = schema + "." + table
	}
	return mssql.CopyIn(name, mssql.BulkOptions{Tablock: true}, columns...)
}

func (d mssqlDialect) IdentityInsert(schema, table string, on bool) (string, bool) {
	state := "OFF"
	if on {
		state = "ON"
	}
	return "SET IDENTITY_INSERT " + d.QualifyTable(schema, table) + " " + state, true
}

func (mssqlDialect) ConstraintError(table string, err error) (error, bool) {
	var serr mssql.Error
	if !errors.As(err, &serr) {
		return err, false
	}
	switch serr.Number {
	case 2627, 2601:
		return etl.ErrPrimaryKeyViolation.New(table, err), true
	case 515:
		return etl.ErrNotNullViolation.New(table, err), true
	case 547:
		// 547 covers both referential and check constraints; the
		// message names which one fired.
		if strings.Contains(serr.Message, "CHECK") {
			return etl.ErrCheckViolation.New(table, err), true
		}
		return etl.ErrForeignKeyViolation.New(table, err), true
	}
	return err, false
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d sqliteDialect) QualifyTable(_, table string) string {
	return d.QuoteIdent(table)
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) NoLock() string { return "" }

// length() counts characters on TEXT values; the cast makes it bytes.
func (sqliteDialect) ByteLength(expr string) string {
	return "length(CAST(" + expr + " AS BLOB))"
}

func (sqliteDialect) Top(int) string { return "" }

func (sqliteDialect) Limit(n int) string { return fmt.Sprintf(" LIMIT %d", n) }

// The compiled-in sqlite default for SQLITE_MAX_VARIABLE_NUMBER.
func (sqliteDialect) MaxParams() int { return 999 }

func (sqliteDialect) SupportsBulkCopy() bool { return false }

func (sqliteDialect) BulkCopyStatement(string, string, []string) string { return "" }

func (sqliteDialect) IdentityInsert(string, string, bool) (string, bool) { return "", false }

func (sqliteDialect) ConstraintError(table string, err error) (error, bool) {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return err, false
	}
	switch serr.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintRowID:
		return etl.ErrPrimaryKeyViolation.New(table, err), true
	case sqlite3.ErrConstraintNotNull:
		return etl.ErrNotNullViolation.New(table, err), true
	case sqlite3.ErrConstraintForeignKey:
		return etl.ErrForeignKeyViolation.New(table, err), true
	case sqlite3.ErrConstraintCheck:
		return etl.ErrCheckViolation.New(table, err), true
	}
	return err, false
}
